package routing

import (
	"context"
	"time"

	"github.com/farhan/payroute/internal/clock"
)

// Usage computes a provider account's consumed volume from the attempt
// ledger over two rolling windows: the business day and the trailing 30
// days. Both are recomputed from the ledger on every call.
type Usage struct {
	store     Store
	clock     clock.Clock
	zone      *time.Location
	startHour int
}

func NewUsage(store Store, clk clock.Clock, zone *time.Location, startHour int) *Usage {
	return &Usage{
		store:     store,
		clock:     clk,
		zone:      zone,
		startHour: startHour,
	}
}

// BusinessDayStart returns the UTC instant the current business day began.
// The business day runs from startHour to startHour in the configured zone;
// when the local clock is before startHour, the day began yesterday. The
// local date is converted to UTC using the zone offset in effect on that
// date, not today's, so windows stay correct across daylight-saving
// transitions. Re-derived per call and never cached.
func (u *Usage) BusinessDayStart() time.Time {
	now := u.clock.Now().In(u.zone)
	y, m, d := now.Date()
	if now.Hour() < u.startHour {
		y, m, d = now.AddDate(0, 0, -1).Date()
	}
	return time.Date(y, m, d, u.startHour, 0, 0, 0, u.zone).UTC()
}

// BusinessDayUsage sums successful attempts, in reference-currency minor
// units, since the business day began.
func (u *Usage) BusinessDayUsage(ctx context.Context, providerID string) (int64, error) {
	return u.store.SumSuccessfulAmount(ctx, providerID, u.BusinessDayStart(), u.clock.Now().UTC())
}

// MonthUsage sums successful attempts over a rolling 30-day window.
func (u *Usage) MonthUsage(ctx context.Context, providerID string) (int64, error) {
	now := u.clock.Now().UTC()
	return u.store.SumSuccessfulAmount(ctx, providerID, now.AddDate(0, 0, -30), now)
}
