// README: Ride status flow as code; every status mutation goes through AssertTransition.
package ride

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusRequested      Status = "requested"
	StatusMatched        Status = "matched"
	StatusDriverArriving Status = "driver_arriving"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusRequested, StatusMatched, StatusDriverArriving, StatusInProgress, StatusCompleted, StatusCancelled,
}

// AllowedTransitions is the single source of truth for the ride flow.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:      {StatusMatched, StatusCancelled},
	StatusMatched:        {StatusDriverArriving, StatusCancelled},
	StatusDriverArriving: {StatusInProgress, StatusCancelled},
	StatusInProgress:     {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

var ErrInvalidTransition = errors.New("invalid state transition")

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func (s Status) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(AllowedTransitions[s]) == 0
}

// Active reports whether the ride still holds, or may soon hold, a driver.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal()
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func AssertTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Next returns a copy of the allowed outbound statuses.
func Next(from Status) []Status {
	return append([]Status{}, AllowedTransitions[from]...)
}
