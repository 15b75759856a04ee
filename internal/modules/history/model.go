// README: History pages and driver earnings summary.
package history

import (
	"errors"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrBadRequest = errors.New("bad request")

type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type Earnings struct {
	TotalRides      int     `json:"totalRides"`
	TotalEarnings   float64 `json:"totalEarnings"`
	AverageFare     float64 `json:"averageFare"`
	TotalDistanceKm float64 `json:"totalDistanceKm"`
	TotalMinutes    int     `json:"totalMinutes"`
}

// Window bounds an earnings query; nil ends are open. To is exclusive.
type Window struct {
	From *time.Time
	To   *time.Time
}

// normalize clamps page to >= 1 and limit to [1, MaxLimit], 0 meaning default.
func normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return page, limit
}
