// Package qserrors defines the sentinel error taxonomy shared across the
// parser, compiler, executor, and scheduler, per the specification's
// error-handling section. Callers should use errors.Is/errors.As against
// these sentinels rather than matching on message text.
package qserrors

import "errors"

var (
	// ErrParse means a QuickStatements line could not be parsed into a
	// command at all.
	ErrParse = errors.New("quickstatements: parse error")

	// ErrResolution means a title, LAST reference, or property name could
	// not be resolved to a concrete entity id.
	ErrResolution = errors.New("quickstatements: resolution error")

	// ErrApiTransient means the wiki API returned a retryable condition
	// (throttling, a transient network failure). The action runner retries
	// these without failing the command.
	ErrApiTransient = errors.New("quickstatements: transient api error")

	// ErrApiAlreadyExists means the wiki reported that the qualifier or
	// reference being added already exists; the action runner treats this
	// as success.
	ErrApiAlreadyExists = errors.New("quickstatements: api already-exists")

	// ErrApiFatal means the wiki API rejected the action for a reason that
	// will not resolve itself on retry.
	ErrApiFatal = errors.New("quickstatements: fatal api error")

	// ErrUserBlocked means the bot-acting user has been blocked on the
	// target wiki; in-flight and queued batches for that user must stop.
	ErrUserBlocked = errors.New("quickstatements: user is blocked")

	// ErrOperatorStop means a human operator requested the batch or
	// scheduler stop; not a failure.
	ErrOperatorStop = errors.New("quickstatements: stopped by operator")

	// ErrInfrastructure means the failure originates below the domain
	// logic: the queue store, the credential store, or similar.
	ErrInfrastructure = errors.New("quickstatements: infrastructure error")
)
