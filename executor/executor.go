// Package executor implements the batch executor (the component the
// specification calls C6): it walks a batch's commands in order, resolves
// LAST against the entity most recently touched, keeps a small cache of the
// entities the batch has looked at, and drives each compiled action through
// the wiki API. Entities are always loaded at their latest revision; the
// cache records no revision and none is pinned.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/wmde/qsbot/common"
	"github.com/wmde/qsbot/qscompile"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qserrors"
	"github.com/wmde/qsbot/wikiapi"
)

// maxCachedRevisions bounds the per-batch entity cache; entries beyond this
// are evicted oldest-first, since a batch that touches hundreds of
// entities should not hold all of their snapshots in memory at once.
const maxCachedRevisions = 5

// blockCheckInterval is how many commands the executor processes between
// checks that the acting user hasn't been blocked mid-batch.
const blockCheckInterval = 20

// WikiAPI is the subset of wikiapi.Client the executor depends on, kept as
// an interface so batch-executor tests run against a fake instead of a
// live wiki.
type WikiAPI interface {
	LoadEntity(ctx context.Context, id string, knownRevision int64) (*qscompile.EntitySnapshot, error)
	Execute(ctx context.Context, action string, params map[string]string) (wikiapi.ExecuteResult, error)
	IsUserBlocked(ctx context.Context, username string) (bool, error)
}

// CommandResult records the outcome of one source line for the queue
// gateway to persist.
type CommandResult struct {
	Actions []ActionOutcome
	Err     error
}

// ActionOutcome is one compiled action's result, kept for audit/debugging
// even when AlreadyDone made the network call unnecessary.
type ActionOutcome struct {
	Kind          qscompile.ActionKind
	AlreadyDone   bool
	Message       string
	EntityTouched string
}

// Batch is the executor's per-batch mutable state: the LAST cursor and the
// bounded entity snapshot cache. One Batch must not be used concurrently
// from more than one goroutine; the scheduler guarantees a batch runs on a
// single worker at a time.
type Batch struct {
	api         WikiAPI
	botUsername string
	summary     string
	logger      *common.ContextLogger

	hasLast        bool
	lastEntityID   string
	lastEntityType string

	cache    map[string]*qscompile.EntitySnapshot
	lruOrder []string

	commandsSinceBlockCheck int

	// ctx is the context of the Execute call currently in flight; lookup
	// closures handed to qscompile.Context have no context parameter of
	// their own, so they read it from here. Safe because a Batch is never
	// used from more than one goroutine at a time.
	ctx context.Context
}

// NewBatch builds executor state for one batch run. summary is the fixed
// per-batch edit summary; individual commands may carry an additional
// comment that gets appended to it with "; ". initialLast seeds the LAST
// cursor from the batch row's persisted last_item, so a batch resumed after
// a worker restart still resolves LAST the way it would have had the
// process never stopped; pass "" for a batch that hasn't touched an entity
// yet.
func NewBatch(api WikiAPI, botUsername, summary, initialLast string, logger *common.ContextLogger) *Batch {
	b := &Batch{
		api:         api,
		botUsername: botUsername,
		summary:     summary,
		logger:      logger,
		cache:       map[string]*qscompile.EntitySnapshot{},
	}
	if initialLast != "" {
		b.hasLast = true
		b.lastEntityID = strings.ToUpper(strings.TrimSpace(initialLast))
	}
	return b
}

// LastEntityID returns the entity id LAST currently resolves to within this
// batch, or "" if no command has touched an entity yet. The queue gateway
// persists this after every DONE command so a future resume picks up where
// this run left off.
func (b *Batch) LastEntityID() string {
	if !b.hasLast {
		return ""
	}
	return b.lastEntityID
}

func (b *Batch) lookup(id string) (*qscompile.EntitySnapshot, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if snap, ok := b.cache[id]; ok {
		return snap, nil
	}
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := b.api.LoadEntity(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qserrors.ErrResolution, err)
	}
	b.remember(id, snap)
	return snap, nil
}

func (b *Batch) remember(id string, snap *qscompile.EntitySnapshot) {
	if _, ok := b.cache[id]; !ok {
		b.lruOrder = append(b.lruOrder, id)
	}
	b.cache[id] = snap
	for len(b.lruOrder) > maxCachedRevisions {
		oldest := b.lruOrder[0]
		b.lruOrder = b.lruOrder[1:]
		delete(b.cache, oldest)
	}
}

// forget drops a cached entity so the next lookup reloads it, used after an
// action mutates that entity so subsequent idempotency checks in the same
// batch see the fresh state.
func (b *Batch) forget(id string) {
	id = strings.ToUpper(strings.TrimSpace(id))
	delete(b.cache, id)
}

// Execute runs one parsed command: compiles it against the batch's current
// view of LAST and the touched entities, then executes each resulting
// action in order, threading a newly created claim id into any action that
// depends on it.
func (b *Batch) Execute(ctx context.Context, pc qsparse.ParsedCommand) CommandResult {
	b.ctx = ctx
	if err := b.maybeCheckBlocked(ctx); err != nil {
		return CommandResult{Err: err}
	}

	summary := b.summary
	if pc.Comment != "" {
		summary = strings.TrimSuffix(summary, "; ")
		if summary != "" {
			summary += "; "
		}
		summary += pc.Comment
	}

	cctx := &qscompile.Context{
		Lookup:  b.lookup,
		Summary: summary,
	}
	if b.hasLast {
		cctx.HasLast = true
		cctx.LastRef.ID = b.lastEntityID
		cctx.LastRef.Type = b.lastEntityType
	}

	actions, err := qscompile.Compile(pc.Command, cctx)
	if err != nil {
		return CommandResult{Err: err}
	}

	outcomes := make([]ActionOutcome, 0, len(actions))
	var claimID string
	for _, action := range actions {
		outcome, newClaimID, touchedEntity, err := b.runAction(ctx, action, claimID, pc.Command)
		if err != nil {
			return CommandResult{Actions: outcomes, Err: err}
		}
		outcomes = append(outcomes, outcome)
		if newClaimID != "" {
			claimID = newClaimID
		}
		if strings.EqualFold(touchedEntity, "LAST") && b.hasLast {
			touchedEntity = b.lastEntityID
		}
		if touchedEntity != "" {
			b.forget(touchedEntity)
			b.advanceLast(pc.Command, touchedEntity)
		}
	}
	return CommandResult{Actions: outcomes}
}

func (b *Batch) runAction(ctx context.Context, action qscompile.Action, priorClaimID string, cmd qsparse.Command) (ActionOutcome, string, string, error) {
	if action.AlreadyDone {
		return ActionOutcome{Kind: action.Kind, AlreadyDone: true, Message: action.Meta}, "", "", nil
	}

	params := action.Params
	if action.UsesClaimID {
		if priorClaimID == "" {
			return ActionOutcome{}, "", "", fmt.Errorf("%w: %s needs a claim id but none was produced earlier in this command", qserrors.ErrInfrastructure, action.Kind)
		}
		params = withClaim(params, priorClaimID)
	}

	result, err := b.api.Execute(ctx, string(action.Kind), params)
	if err != nil {
		return ActionOutcome{}, "", "", err
	}
	if result.AlreadyExists {
		return ActionOutcome{Kind: action.Kind, AlreadyDone: true, Message: result.Message}, "", "", nil
	}

	touched := result.EntityID
	if touched == "" {
		touched = entityTouchedBy(cmd, action)
	}
	return ActionOutcome{Kind: action.Kind, EntityTouched: touched}, result.ClaimID, touched, nil
}

func withClaim(params map[string]string, claimID string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["claim"] = claimID
	return out
}

// entityTouchedBy names the entity id an action's side effects landed on,
// used to invalidate the cache entry and advance LAST, for the command
// kinds whose subject is known up front rather than assigned by the wiki's
// response (that case is handled by ExecuteResult.EntityID instead, since
// wbeditentity/wbmergeitems can touch an entity whose id was unknown until
// the response arrived). For wbcreateclaim, wbsetqualifier and
// wbsetreference the subject is part of the command rather than the
// action's own params.
func entityTouchedBy(cmd qsparse.Command, action qscompile.Action) string {
	if id, ok := action.Params["id"]; ok {
		return id
	}
	if id, ok := action.Params["entity"]; ok {
		return id
	}
	switch c := cmd.(type) {
	case qsparse.Merge:
		return c.To.Normalize().ID
	case qsparse.EditStatement:
		return c.Subject.Normalize().ID
	case qsparse.SetLabel:
		return c.Subject.Normalize().ID
	case qsparse.SetDescription:
		return c.Subject.Normalize().ID
	case qsparse.SetAlias:
		return c.Subject.Normalize().ID
	case qsparse.SetSitelink:
		return c.Subject.Normalize().ID
	default:
		return ""
	}
}

// advanceLast updates the LAST cursor after every command that completes
// successfully, not only CREATE and MERGE: the original bot sets
// last_entity_id from the command's own (already LAST-resolved) subject on
// every DONE transition, so a later LAST in the same batch always points at
// the most recently touched entity, regardless of what kind of command
// touched it. touchedEntity is whatever id the wiki actually reported for
// CREATE, since wbeditentity's response carries the assigned id for a new
// entity; for everything else it is the resolved subject itself.
func (b *Batch) advanceLast(cmd qsparse.Command, touchedEntity string) {
	if touchedEntity == "" || strings.EqualFold(touchedEntity, "LAST") {
		return
	}
	b.hasLast = true
	b.lastEntityID = touchedEntity
	switch c := cmd.(type) {
	case qsparse.Create:
		b.lastEntityType = c.EntityType
	case qsparse.Merge:
		b.lastEntityType = ""
	default:
		b.lastEntityType = ""
	}
}

func (b *Batch) maybeCheckBlocked(ctx context.Context) error {
	b.commandsSinceBlockCheck++
	if b.commandsSinceBlockCheck < blockCheckInterval {
		return nil
	}
	b.commandsSinceBlockCheck = 0
	blocked, err := b.api.IsUserBlocked(ctx, b.botUsername)
	if err != nil {
		if b.logger != nil {
			b.logger.WithError(err).Warn("could not check block status; continuing")
		}
		return nil
	}
	if blocked {
		return fmt.Errorf("%w: %s is blocked", qserrors.ErrUserBlocked, b.botUsername)
	}
	return nil
}
