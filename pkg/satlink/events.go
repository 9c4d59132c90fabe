package satlink

import (
	"time"

	"github.com/bft-labs/satlink/internal/app"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.State(s).String()
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// JobFinishedEvent is emitted after every scheduled job execution.
type JobFinishedEvent struct {
	JobID    string
	Err      error
	Duration time.Duration
}

// EventHandler receives service events.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnJobFinished(event JobFinishedEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// a subset of events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnJobFinished(JobFinishedEvent) {}

type eventEmitter struct {
	handler EventHandler
}

func (e eventEmitter) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: State(previous),
		Current:  State(current),
		Reason:   reason,
	})
}

func (e eventEmitter) jobFinished(id string, err error, elapsed time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnJobFinished(JobFinishedEvent{JobID: id, Err: err, Duration: elapsed})
}
