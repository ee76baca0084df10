package service

import (
	"context"
	"errors"
	"time"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/geo"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// Query is one browse request. Mode "" uses the configured default; Shared
// is a location supplied by the client, which takes priority over the cached
// position.
type Query struct {
	Mode   listing.Mode
	Shared *models.Coordinate
	Filter listing.Filter
}

// Page is a slice of an ordered list plus the state a UI needs to render it.
type Page[T any] struct {
	Items    []T
	Total    int
	HasMore  bool
	Mode     listing.Mode
	Distance bool
	Status
}

// Browse runs filter, ordering and paging for the festival list and resets
// the pager to the first page.
func (s *Service) Browse(ctx context.Context, id string, q Query) (Page[models.Festival], error) {
	sess, err := s.session(id)
	if err != nil {
		return Page[models.Festival]{}, err
	}
	if q.Shared != nil {
		if _, err := sess.provider.Share(*q.Shared); err != nil {
			s.logger.Debug().Err(err).Str("session", id).Msg("shared location ignored")
		}
	}

	snap, status, err := snapshot(ctx, s, sess, s.festivalFeed)
	if err != nil {
		return Page[models.Festival]{}, err
	}

	sess.mu.Lock()
	sess.view.nextGen++
	gen := sess.view.nextGen
	sess.mu.Unlock()

	mode := q.Mode
	if mode == "" {
		mode = s.opts.Mode
	}
	filtered := s.filter(q.Filter).Apply(snap)
	ordered, withDistance, err := s.order(ctx, sess, filtered, mode)
	if err != nil {
		return Page[models.Festival]{}, err
	}
	if !withDistance {
		mode = listing.ModeChronological
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if gen <= sess.view.appliedGen {
		// a newer browse already owns the pager
		p := listing.NewPager[models.Festival](s.opts.PageInitial, s.opts.PageIncrement)
		return pageOf(p, p.Reset(ordered), mode, withDistance, status), nil
	}
	sess.view.appliedGen = gen
	sess.view.mode = mode
	sess.view.distance = withDistance
	return pageOf(sess.pager, sess.pager.Reset(ordered), mode, withDistance, status), nil
}

// More grows the current list by one increment.
func (s *Service) More(_ context.Context, id string) (Page[models.Festival], error) {
	sess, err := s.session(id)
	if err != nil {
		return Page[models.Festival]{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	items := sess.pager.More()
	return pageOf(sess.pager, items, sess.view.mode, sess.view.distance, sess.festivals.status()), nil
}

func pageOf(p *listing.Pager[models.Festival], items []models.Festival, mode listing.Mode, distance bool, st Status) Page[models.Festival] {
	return Page[models.Festival]{
		Items:    items,
		Total:    p.Total(),
		HasMore:  p.HasMore(),
		Mode:     mode,
		Distance: distance,
		Status:   st,
	}
}

func (s *Service) filter(f listing.Filter) listing.Filter {
	if f.Now.IsZero() {
		f.Now = s.opts.Now()
	}
	if f.Location == nil {
		f.Location = s.opts.Location
	}
	if f.FuzzyDistance == 0 {
		f.FuzzyDistance = s.opts.FuzzyDistance
	}
	return f
}

// order sorts by distance when asked and a position resolves, otherwise
// chronologically. It reports whether distances were used.
func (s *Service) order(ctx context.Context, sess *Session, records []models.Festival, mode listing.Mode) ([]models.Festival, bool, error) {
	if mode == listing.ModeDistance {
		pos, err := sess.provider.Resolve(ctx)
		if err == nil {
			enriched, err := sess.engine.DistancesFor(ctx, records, pos)
			if err != nil {
				return nil, false, err
			}
			return listing.SortByDistance(enriched), true, nil
		}
		if !errors.Is(err, geo.ErrLocationUnavailable) {
			return nil, false, err
		}
		s.logger.Debug().Err(err).Str("session", sess.ID).Msg("no position, using chronological order")
	}
	return listing.Chronological{Location: s.opts.Location}.Sort(records), false, nil
}

// Dashboard lists festivals from today on, ordered by date, name and scale.
func (s *Service) Dashboard(ctx context.Context, id string) (Page[models.Festival], error) {
	return s.festivalView(ctx, id, func(snap []models.Festival) []models.Festival {
		upcoming := listing.Upcoming(snap, s.opts.Now().In(s.opts.Location))
		return listing.Chronological{Location: s.opts.Location, ScaleOrder: s.opts.ScaleOrder}.Sort(upcoming)
	})
}

// Calendar lists festivals running on day.
func (s *Service) Calendar(ctx context.Context, id string, day time.Time) (Page[models.Festival], error) {
	return s.festivalView(ctx, id, func(snap []models.Festival) []models.Festival {
		active := listing.ActiveOn(snap, day.In(s.opts.Location))
		return listing.Chronological{Location: s.opts.Location}.Sort(active)
	})
}

func (s *Service) festivalView(ctx context.Context, id string, build func([]models.Festival) []models.Festival) (Page[models.Festival], error) {
	sess, err := s.session(id)
	if err != nil {
		return Page[models.Festival]{}, err
	}
	snap, status, err := snapshot(ctx, s, sess, s.festivalFeed)
	if err != nil {
		return Page[models.Festival]{}, err
	}
	items := build(snap)
	return Page[models.Festival]{
		Items:  items,
		Total:  len(items),
		Mode:   listing.ModeChronological,
		Status: status,
	}, nil
}

// Facets returns the filter values present in the festival snapshot.
func (s *Service) Facets(ctx context.Context, id string) (listing.Facets, error) {
	sess, err := s.session(id)
	if err != nil {
		return listing.Facets{}, err
	}
	snap, _, err := snapshot(ctx, s, sess, s.festivalFeed)
	if err != nil {
		return listing.Facets{}, err
	}
	return listing.BuildFacets(snap), nil
}

// Events returns the secondary feed ordered by date. Without an events feed
// the list is empty.
func (s *Service) Events(ctx context.Context, id string) (Page[models.Event], error) {
	sess, err := s.session(id)
	if err != nil {
		return Page[models.Event]{}, err
	}
	if s.eventFeed == nil {
		return Page[models.Event]{Items: []models.Event{}, Mode: listing.ModeChronological}, nil
	}
	snap, status, err := snapshot(ctx, s, sess, s.eventFeed)
	if err != nil {
		return Page[models.Event]{}, err
	}
	return Page[models.Event]{
		Items:  snap,
		Total:  len(snap),
		Mode:   listing.ModeChronological,
		Status: status,
	}, nil
}
