package syncengine

import cpdomain "github.com/allisson/secrets/internal/controlplane/domain"

// Command is sent over the engine's command channel to trigger an
// out-of-band action without exposing the engine's internals to callers.
type Command interface {
	isCommand()
}

// StopCommand asks the engine to flush any pending events and exit its loop.
type StopCommand struct{}

func (StopCommand) isCommand() {}

// ForceFlushCommand asks the engine to flush the outbox immediately,
// bypassing the normal adaptive interval.
type ForceFlushCommand struct{}

func (ForceFlushCommand) isCommand() {}

// ShareEntityCommand requests that entityID be shared with recipientEmail.
// The engine only acknowledges the command; the actual share workflow runs
// through the share manager, which callers invoke directly.
type ShareEntityCommand struct {
	EntityID       string
	EntityType     string
	RecipientEmail string
	Permission     cpdomain.SharePermission
}

func (ShareEntityCommand) isCommand() {}
