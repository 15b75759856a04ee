// README: Dispatch attempt log in Redis (when a ride was dispatched, the advisory pick, who got it, in what claim order).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridecore/internal/types"
)

const (
	attemptKeyFmt    = "dispatch:ride:%s:attempt"
	candidatesKeyFmt = "dispatch:ride:%s:candidates"
	// Rides resolve well within a week.
	attemptTTL = 7 * 24 * time.Hour
)

// Attempt is the audit record of the last successful dispatch of a ride.
// Candidates are in claim order: the advisory pick first, then nearest first.
type Attempt struct {
	RideID           types.ID   `json:"rideId"`
	DispatchedAt     time.Time  `json:"dispatchedAt"`
	AdvisoryPick     types.ID   `json:"advisoryPick"`
	AssignedDriverID types.ID   `json:"assignedDriverId"`
	Reasoning        string     `json:"reasoning"`
	AdvisoryFallback bool       `json:"advisoryFallback"`
	Skipped          int        `json:"skipped"`
	Candidates       []types.ID `json:"candidates"`
}

type AttemptLog struct {
	redis *redis.Client
}

func NewAttemptLog(redis *redis.Client) *AttemptLog {
	return &AttemptLog{redis: redis}
}

// Record replaces the ride's attempt. The summary is one JSON value and the
// candidates a list, written in one MULTI so readers never see a mix.
func (l *AttemptLog) Record(ctx context.Context, a Attempt) error {
	summary := a
	summary.Candidates = nil
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("dispatch.AttemptLog.Record: %w", err)
	}

	listKey := fmt.Sprintf(candidatesKeyFmt, a.RideID)
	pipe := l.redis.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(attemptKeyFmt, a.RideID), raw, attemptTTL)
	pipe.Del(ctx, listKey)
	if len(a.Candidates) > 0 {
		members := make([]interface{}, len(a.Candidates))
		for i, c := range a.Candidates {
			members[i] = string(c)
		}
		pipe.RPush(ctx, listKey, members...)
		pipe.Expire(ctx, listKey, attemptTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch.AttemptLog.Record: %w", err)
	}
	return nil
}

// Lookup returns the recorded attempt, ok=false when none exists.
func (l *AttemptLog) Lookup(ctx context.Context, rideID types.ID) (Attempt, bool, error) {
	raw, err := l.redis.Get(ctx, fmt.Sprintf(attemptKeyFmt, rideID)).Bytes()
	if err == redis.Nil {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("dispatch.AttemptLog.Lookup: %w", err)
	}
	var a Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return Attempt{}, false, fmt.Errorf("dispatch.AttemptLog.Lookup: %w", err)
	}

	members, err := l.redis.LRange(ctx, fmt.Sprintf(candidatesKeyFmt, rideID), 0, -1).Result()
	if err != nil {
		return Attempt{}, false, fmt.Errorf("dispatch.AttemptLog.Lookup: %w", err)
	}
	a.Candidates = make([]types.ID, len(members))
	for i, m := range members {
		a.Candidates[i] = types.ID(m)
	}
	return a, true, nil
}
