package cache

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
	"golang.org/x/sync/singleflight"
)

// Lookup results reported to LookupRecorder.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// LookupRecorder counts cache lookups by result.
type LookupRecorder interface {
	CacheLookup(result string)
}

// Directory is a ports.CustomerDirectory that remembers resolved customers.
// Concurrent resolves for one user share a single call to the wrapped
// directory. Cache failures degrade to the wrapped directory.
type Directory struct {
	next    ports.CustomerDirectory
	cache   ports.CustomerCache
	metrics LookupRecorder
	logger  zerolog.Logger
	group   singleflight.Group
}

// NewDirectory wraps next with cache. metrics may be nil.
func NewDirectory(next ports.CustomerDirectory, cache ports.CustomerCache, metrics LookupRecorder, logger zerolog.Logger) *Directory {
	return &Directory{next: next, cache: cache, metrics: metrics, logger: logger}
}

// Resolve returns the customer for userID.
// A cache hit carries only the customer and user IDs.
func (d *Directory) Resolve(ctx context.Context, userID string) (billing.Customer, error) {
	id, ok, err := d.cache.Get(ctx, userID)
	switch {
	case err != nil:
		d.record(LookupError)
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("customer cache read failed")
	case ok:
		d.record(LookupHit)
		return billing.Customer{ID: id, UserID: userID}, nil
	default:
		d.record(LookupMiss)
	}

	// The shared call ignores cancellation of whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := d.group.DoChan(userID, func() (any, error) {
		c, err := d.next.Resolve(shared, userID)
		if err != nil {
			return billing.Customer{}, err
		}
		if err := d.cache.Set(shared, userID, c.ID); err != nil {
			d.logger.Warn().Err(err).Str("user_id", userID).Msg("customer cache write failed")
		}
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return billing.Customer{}, res.Err
		}
		return res.Val.(billing.Customer), nil
	case <-ctx.Done():
		return billing.Customer{}, ctx.Err()
	}
}

func (d *Directory) record(result string) {
	if d.metrics != nil {
		d.metrics.CacheLookup(result)
	}
}

// Ensure interface compliance.
var _ ports.CustomerDirectory = (*Directory)(nil)
