package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wmde/qsbot/qserrors"
)

type apiErrorResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// alreadyExistsPhrases are substrings of wiki error messages that mean "the
// qualifier/reference you tried to add is already there" rather than a
// genuine failure; the action runner treats these identically to success.
var alreadyExistsPhrases = []string{
	"already has a qualifier",
	"already has this reference",
	"already has a reference",
}

// ExecuteResult is what the action runner gets back from one write call.
type ExecuteResult struct {
	Raw           json.RawMessage
	AlreadyExists bool
	Message       string
	// ClaimID is populated from the response for wbcreateclaim (and
	// similar) calls so the caller can thread it into dependent
	// wbsetqualifier/wbsetreference calls.
	ClaimID string
	// EntityID is populated from the response's own "entity" object for
	// wbeditentity, so a freshly CREATEd entity's id — unknown until the
	// wiki assigns it — can become the batch's new LAST cursor without
	// the caller having to guess it from the request parameters.
	EntityID string
}

type claimResponse struct {
	Claim struct {
		ID string `json:"id"`
	} `json:"claim"`
}

type entityResponse struct {
	Entity struct {
		ID string `json:"id"`
	} `json:"entity"`
}

// Execute POSTs one write action, injecting a fresh CSRF token and maxlag,
// and retries forever on actionthrottledtext (sleeping 5s between
// attempts) since throttling is always transient. Any other API error is
// wrapped in qserrors.ErrApiFatal, except the already-has-a-qualifier /
// already-has-a-reference family, which is reported as success.
func (c *Client) Execute(ctx context.Context, action string, params map[string]string) (ExecuteResult, error) {
	for {
		if err := c.throttle(ctx); err != nil {
			return ExecuteResult{}, err
		}
		token, err := c.freshToken(ctx)
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("%w: %v", qserrors.ErrInfrastructure, err)
		}

		req := c.http.R().SetContext(ctx).SetFormData(params).
			SetFormData(map[string]string{
				"action": action,
				"format": "json",
				"token":  token,
				"maxlag": strconv.Itoa(c.cfg.MaxLag),
				"bot":    "1",
			})
		resp, err := req.Post("")
		c.lastEditAt = time.Now()
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("%w: %s request: %v", qserrors.ErrApiTransient, action, err)
		}

		var apiErr apiErrorResponse
		_ = json.Unmarshal(resp.Body(), &apiErr)
		if apiErr.Error != nil {
			if apiErr.Error.Code == "actionthrottledtext" {
				select {
				case <-ctx.Done():
					return ExecuteResult{}, ctx.Err()
				case <-time.After(5 * time.Second):
				}
				continue
			}
			if isAlreadyExistsMessage(apiErr.Error.Info) {
				return ExecuteResult{AlreadyExists: true, Message: apiErr.Error.Info}, nil
			}
			return ExecuteResult{}, fmt.Errorf("%w: %s: %s: %s", qserrors.ErrApiFatal, action, apiErr.Error.Code, apiErr.Error.Info)
		}
		if resp.IsError() {
			return ExecuteResult{}, fmt.Errorf("%w: %s: http %d", qserrors.ErrApiTransient, action, resp.StatusCode())
		}

		result := ExecuteResult{Raw: resp.Body()}
		var cr claimResponse
		if json.Unmarshal(resp.Body(), &cr) == nil {
			result.ClaimID = cr.Claim.ID
		}
		var er entityResponse
		if json.Unmarshal(resp.Body(), &er) == nil {
			result.EntityID = er.Entity.ID
		}
		return result, nil
	}
}

func isAlreadyExistsMessage(info string) bool {
	info = strings.ToLower(info)
	for _, phrase := range alreadyExistsPhrases {
		if strings.Contains(info, phrase) {
			return true
		}
	}
	return false
}
