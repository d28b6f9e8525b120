package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// State is the completion state of a wrapped action.
type State string

const (
	// Uncompleted means the effect does not hold: initial, or after a revert.
	Uncompleted State = "Uncompleted"

	// Completed means the effect holds: after an execute, or detected at plan
	// time.
	Completed State = "Completed"
)

// Stateful wraps an action with its completion state.
//
// The wrapped action is never executed while Completed and never reverted
// while Uncompleted. A failed transition leaves the state unchanged.
type Stateful[A Action] struct {
	action A
	state  State
}

// NewCompleted wraps a whose effect already holds.
func NewCompleted[A Action](a A) *Stateful[A] {
	return &Stateful[A]{action: a, state: Completed}
}

// NewUncompleted wraps a whose effect does not hold yet.
func NewUncompleted[A Action](a A) *Stateful[A] {
	return &Stateful[A]{action: a, state: Uncompleted}
}

// Erase converts a typed wrapper into one over the Action interface so it
// can share a list with other action types.
func Erase[A Action](s *Stateful[A]) *Stateful[Action] {
	return &Stateful[Action]{action: s.action, state: s.state}
}

// Inner returns the wrapped action.
func (s *Stateful[A]) Inner() A {
	return s.action
}

// State returns the current completion state.
func (s *Stateful[A]) State() State {
	return s.state
}

// Tag returns the tag of the wrapped action.
func (s *Stateful[A]) Tag() Tag {
	return s.action.Tag()
}

// Synopsis returns the synopsis of the wrapped action.
func (s *Stateful[A]) Synopsis() string {
	return s.action.Synopsis()
}

// DescribeExecute describes the pending execute, or nothing when Completed.
func (s *Stateful[A]) DescribeExecute() []Description {
	if s.state == Completed {
		return nil
	}
	return s.action.ExecuteDescription()
}

// DescribeRevert describes the pending revert, or nothing when Uncompleted.
func (s *Stateful[A]) DescribeRevert() []Description {
	if s.state == Uncompleted {
		return nil
	}
	return s.action.RevertDescription()
}

// TryExecute executes the action unless it is already Completed.
func (s *Stateful[A]) TryExecute(ctx context.Context) error {
	if s.state == Completed {
		log.Debug().Str("action", s.action.Tag().String()).Msg("Completed: " + s.action.Synopsis())
		return nil
	}

	log.Debug().Str("action", s.action.Tag().String()).Msg("Executing: " + s.action.Synopsis())
	if err := s.action.Execute(ctx); err != nil {
		return Wrap(s.action.Tag(), err)
	}
	s.state = Completed
	return nil
}

// TryRevert reverts the action unless it is Uncompleted.
func (s *Stateful[A]) TryRevert(ctx context.Context) error {
	if s.state == Uncompleted {
		log.Debug().Str("action", s.action.Tag().String()).Msg("Already reverted: " + s.action.Synopsis())
		return nil
	}

	log.Debug().Str("action", s.action.Tag().String()).Msg("Reverting: " + s.action.Synopsis())
	if err := s.action.Revert(ctx); err != nil {
		return Wrap(s.action.Tag(), err)
	}
	s.state = Uncompleted
	return nil
}

type statefulJSON struct {
	Action json.RawMessage `json:"action"`
	State  State           `json:"state"`
}

// MarshalJSON writes the action with its tag plus the state.
func (s *Stateful[A]) MarshalJSON() ([]byte, error) {
	body, err := registry.Encode(s.action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(statefulJSON{Action: body, State: s.state})
}

// UnmarshalJSON reads a wrapper, resolving the concrete action through the
// registry.
func (s *Stateful[A]) UnmarshalJSON(data []byte) error {
	var raw statefulJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.State {
	case Completed, Uncompleted:
	default:
		return fmt.Errorf("invalid action state %q", raw.State)
	}

	decoded, err := registry.Decode(raw.Action)
	if err != nil {
		return err
	}

	typed, ok := decoded.(A)
	if !ok {
		return fmt.Errorf("action %q decodes to %T, want %T", decoded.Tag(), decoded, s.action)
	}
	s.action = typed

	s.state = raw.State
	return nil
}
