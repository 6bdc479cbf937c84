package nav

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aretw0/folio/pkg/core"
)

// Page ages that bound the stale widget: a page is listed once it is
// StaleAfter old and drops out when it reaches OutdatedAfter.
const (
	StaleAfter    = 270 * 24 * time.Hour
	OutdatedAfter = 365 * 24 * time.Hour
)

// DefaultWidgetLimit is the list length used when limit is not positive.
const DefaultWidgetLimit = 8

func (c *Cache) pageDates(ctx context.Context) ([]core.PageDate, error) {
	if c.dates == nil {
		return nil, errors.New("nav: no date source configured")
	}
	return load(ctx, c, KeyDates, c.dates.Dates)
}

// RecentlyUpdated returns the pages with the newest content dates first.
func (c *Cache) RecentlyUpdated(ctx context.Context, limit int) ([]core.PageDate, error) {
	pages, err := c.pageDates(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]core.PageDate(nil), pages...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Path < out[j].Path
	})
	return truncate(out, limit), nil
}

// Stale returns the pages whose age, in whole days, lies between
// StaleAfter and OutdatedAfter. The oldest come first.
func (c *Cache) Stale(ctx context.Context, limit int) ([]core.PageDate, error) {
	pages, err := c.pageDates(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	minDays, maxDays := days(StaleAfter), days(OutdatedAfter)
	var out []core.PageDate
	for _, p := range pages {
		age := days(now.Sub(p.Date))
		if age >= minDays && age < maxDays {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Path < out[j].Path
	})
	return truncate(out, limit), nil
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}

func truncate(pages []core.PageDate, limit int) []core.PageDate {
	if limit <= 0 {
		limit = DefaultWidgetLimit
	}
	if len(pages) > limit {
		pages = pages[:limit]
	}
	return pages
}

var _ core.Widgets = (*Cache)(nil)
