package ride

import "errors"

var (
	ErrNotFound                    = errors.New("ride not found")
	ErrForbidden                   = errors.New("not allowed to act on this ride")
	ErrConflict                    = errors.New("ride was modified concurrently")
	ErrBadRequest                  = errors.New("bad request")
	ErrNoDriversAvailable          = errors.New("no drivers available")
	ErrDestinationChangeNotAllowed = errors.New("destination can only be changed while the driver is arriving or the ride is in progress")
	ErrCancelNotAllowed            = errors.New("riders cannot cancel a ride in progress")
)
