// Package inventory guards a trip's seat set.  Claims and releases are
// applied as a version-checked swap against the stored seat set and
// retried with fresh state when another writer got there first, so two
// overlapping claims can never both succeed.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/bus-seat-booking/internal/metrics"
	"github.com/iliyamo/bus-seat-booking/internal/model"
)

// SeatStore is the persistence the guard needs.  SwapSeats must be a
// single conditional write: it replaces the seat set only if the stored
// version still equals expected (and, when requireScheduled is set, the
// trip is still scheduled), returning false when the condition failed.
type SeatStore interface {
	LoadSeatSet(ctx context.Context, tripID uint64) (model.SeatSet, error)
	SwapSeats(ctx context.Context, tripID uint64, expected uint32, seats []string, requireScheduled bool) (bool, error)
}

// Options tunes the retry loop.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	OpTimeout   time.Duration
}

// Guard serialises writers of the same seat set; different trips never
// contend.
type Guard struct {
	store  SeatStore
	opts   Options
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

const (
	maxAttempts    = 10
	maxBaseBackoff = time.Second
)

// NewGuard builds a Guard.  Zero options fall back to 4 attempts, 25ms
// base backoff and a 3s per-call timeout.  Attempts are capped at 10 and
// the base backoff at 1s.
func NewGuard(store SeatStore, opts Options, logger *slog.Logger) *Guard {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	opts.MaxAttempts = min(opts.MaxAttempts, maxAttempts)
	if opts.Backoff <= 0 {
		opts.Backoff = 25 * time.Millisecond
	}
	opts.Backoff = min(opts.Backoff, maxBaseBackoff)
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, opts: opts, logger: logger, sleep: sleepCtx}
}

// Claim appends labels to the trip's seat set.  It fails with
// SeatConflictError listing the labels already present (or the remaining
// capacity when the trip is too full) and TripUnavailableError when the
// trip is missing or not scheduled.
func (g *Guard) Claim(ctx context.Context, tripID uint64, labels []string) error {
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		set, err := g.load(ctx, tripID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.TripUnavailableError{TripID: tripID, Reason: "not found"}
			}
			return err
		}
		if set.Status != model.TripScheduled {
			return model.TripUnavailableError{TripID: tripID, Reason: set.Status}
		}
		if taken := overlap(set.Seats, labels); len(taken) > 0 {
			metrics.SeatConflicts.Inc()
			return model.SeatConflictError{Seats: taken, Available: set.Available()}
		}
		if len(labels) > set.Available() {
			metrics.SeatConflicts.Inc()
			return model.SeatConflictError{Available: set.Available()}
		}

		next := make([]string, 0, len(set.Seats)+len(labels))
		next = append(next, set.Seats...)
		next = append(next, labels...)
		ok, err := g.swap(ctx, tripID, set.Version, next, true)
		if err != nil {
			// The write may have committed before the error came back.
			landed, verr := g.claimLanded(ctx, tripID, set.Version, next, labels)
			if verr != nil {
				return verr
			}
			if landed {
				g.logger.Warn("seat claim committed despite store error", "trip_id", tripID, "seats", labels, "error", err)
				return nil
			}
			return err
		}
		if ok {
			return nil
		}
		metrics.SeatClaimRetries.Inc()
		g.logger.Debug("seat claim lost version race", "trip_id", tripID, "attempt", attempt+1)
		if attempt == g.opts.MaxAttempts-1 {
			break
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return err
		}
	}
	// Still contended after every attempt: report what is occupied now.
	metrics.SeatConflicts.Inc()
	set, err := g.load(ctx, tripID)
	if err != nil {
		return model.SeatConflictError{Seats: labels}
	}
	if taken := overlap(set.Seats, labels); len(taken) > 0 {
		return model.SeatConflictError{Seats: taken, Available: set.Available()}
	}
	return model.SeatConflictError{Seats: labels, Available: set.Available()}
}

// Release removes labels from the seat set.  Labels that are not present
// are ignored and a missing trip is a no-op, so cancellation can call it
// repeatedly.
func (g *Guard) Release(ctx context.Context, tripID uint64, labels []string) error {
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		set, err := g.load(ctx, tripID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return err
		}
		next, removed := without(set.Seats, labels)
		if removed == 0 {
			return nil
		}
		ok, err := g.swap(ctx, tripID, set.Version, next, false)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		metrics.SeatClaimRetries.Inc()
		if attempt == g.opts.MaxAttempts-1 {
			break
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return err
		}
	}
	return model.TransientError{Op: "release seats", Err: errors.New("seat set still contended after retries")}
}

// Snapshot returns the current seat set of a trip.
func (g *Guard) Snapshot(ctx context.Context, tripID uint64) (model.SeatSet, error) {
	return g.load(ctx, tripID)
}

func (g *Guard) load(ctx context.Context, tripID uint64) (model.SeatSet, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	defer cancel()
	return g.store.LoadSeatSet(ctx, tripID)
}

// swap is detached from the caller so a disconnecting client cannot abort
// a write halfway; the op timeout still bounds it.
func (g *Guard) swap(ctx context.Context, tripID uint64, version uint32, seats []string, requireScheduled bool) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.OpTimeout)
	defer cancel()
	return g.store.SwapSeats(ctx, tripID, version, seats, requireScheduled)
}

// claimLanded re-reads the seat set after a failed swap and reports
// whether the write of next over version expected committed.  None of
// labels were present at expected, so:
//   - version unchanged, or any label missing: the claim did not land;
//   - version+1 holding exactly next: it did;
//   - anything else: the seats are held and the owner cannot be told
//     apart, which is returned as a FatalInconsistencyError.
func (g *Guard) claimLanded(ctx context.Context, tripID uint64, expected uint32, next, labels []string) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	var set model.SeatSet
	var err error
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		if set, err = g.load(ctx, tripID); err == nil {
			break
		}
		if attempt < g.opts.MaxAttempts-1 {
			_ = g.sleep(ctx, g.backoff(attempt))
		}
	}
	detail := fmt.Sprintf("trip_id=%d seats=%s expected_version=%d", tripID, strings.Join(labels, ","), expected)
	if err != nil {
		metrics.FatalInconsistencies.Inc()
		g.logger.Error("seat claim outcome unknown", "trip_id", tripID, "seats", labels, "error", err)
		return false, model.FatalInconsistencyError{Op: "claim seats", Detail: detail, Err: err}
	}
	if set.Version == expected || len(overlap(set.Seats, labels)) < len(labels) {
		return false, nil
	}
	if set.Version == expected+1 && slices.Equal(set.Seats, next) {
		return true, nil
	}
	metrics.FatalInconsistencies.Inc()
	g.logger.Error("seat claim outcome unknown", "trip_id", tripID, "seats", labels, "version", set.Version)
	return false, model.FatalInconsistencyError{Op: "claim seats", Detail: detail, Err: errors.New("seat set moved on after an unconfirmed write")}
}

const maxBackoffShift = 8

// backoff doubles per attempt, capped at 256 × Backoff, with up to 50% jitter.
func (g *Guard) backoff(attempt int) time.Duration {
	d := g.opts.Backoff << min(attempt, maxBackoffShift)
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// overlap returns the labels of want that are already in have, in want order.
func overlap(have, want []string) []string {
	if len(have) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range want {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// without returns have minus drop, preserving order, and how many were removed.
func without(have, drop []string) ([]string, int) {
	rm := make(map[string]struct{}, len(drop))
	for _, s := range drop {
		rm[s] = struct{}{}
	}
	out := make([]string, 0, len(have))
	for _, s := range have {
		if _, ok := rm[s]; ok {
			continue
		}
		out = append(out, s)
	}
	return out, len(have) - len(out)
}
