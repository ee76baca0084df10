package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/csvfeed"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/store"
)

// feed binds a source to its parser, ordering, cache slot and session state.
type feed[T any] struct {
	name    string
	fetcher Fetcher
	parse   func(io.Reader) ([]T, csvfeed.Stats, error)
	order   func([]T) []T
	cache   *store.Cache[[]T]
	state   func(*Session) *feedState[T]
}

// snapshot returns the data to serve for sess. A snapshot already in memory
// or in the session cache is returned at once while a revalidation runs in
// the background. Without one the call blocks on the first fetch.
func snapshot[T any](ctx context.Context, s *Service, sess *Session, f *feed[T]) ([]T, Status, error) {
	sess.mu.Lock()
	st := f.state(sess)

	if !st.loaded {
		if cached, ok := f.cache.Load(ctx, sess.ID); ok {
			st.snapshot = cached
			st.encoded, _ = f.cache.Encode(cached)
			st.loaded = true
			st.fromCache = true
			st.state = StateServingCache
			s.metrics.add(ctx, s.metrics.cacheHits, 1, f.name)
		} else {
			s.metrics.add(ctx, s.metrics.cacheMisses, 1, f.name)
		}
	}

	if st.loaded {
		if st.inflight == 0 {
			gen := st.begin()
			if !s.goBackground(func(bg context.Context) { _ = refresh(bg, s, sess, f, gen) }) {
				st.inflight--
			}
		}
		snap, status := st.snapshot, st.status()
		sess.mu.Unlock()
		return snap, status, nil
	}

	gen := st.begin()
	sess.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	err := refresh(fetchCtx, s, sess, f, gen)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !st.loaded {
		if err == nil {
			err = st.lastErr
		}
		if err == nil {
			return nil, st.status(), ErrNoData
		}
		return nil, st.status(), fmt.Errorf("%w: %w", ErrNoData, err)
	}
	return st.snapshot, st.status(), nil
}

// refresh runs one cycle: Fetching, Parsed, then under the session lock
// either Discarded (a newer generation already applied) or Compared and
// Applied. Nothing is visible to readers before the final step.
func refresh[T any](ctx context.Context, s *Service, sess *Session, f *feed[T], gen uint64) error {
	st := f.state(sess)
	log := s.logger.With().Str("feed", f.name).Str("session", sess.ID).Uint64("generation", gen).Logger()

	s.mark(sess, &st.tracker, StateFetching)
	body, err := f.fetcher.Fetch(ctx)
	if err != nil {
		return s.fail(ctx, sess, &st.tracker, f.name, gen, fmt.Errorf("fetch %s feed: %w", f.name, err))
	}

	recs, stats, err := f.parse(bytes.NewReader(body))
	if err != nil {
		return s.fail(ctx, sess, &st.tracker, f.name, gen, fmt.Errorf("parse %s feed: %w", f.name, err))
	}
	s.metrics.add(ctx, s.metrics.rowsParsed, stats.Rows, f.name)
	s.metrics.add(ctx, s.metrics.rowsSkipped, stats.Skipped(), f.name)
	log.Info().
		Int("rows", stats.Rows).
		Int("kept", stats.Kept).
		Int("missing_fields", stats.MissingFields).
		Int("rejected", stats.Rejected).
		Msg("feed parsed")
	s.mark(sess, &st.tracker, StateParsed)

	ordered := f.order(recs)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	st.inflight--

	if sess.ended || gen <= st.appliedGen {
		st.state = StateDiscarded
		s.metrics.add(ctx, s.metrics.refreshDiscarded, 1, f.name)
		log.Debug().Uint64("applied_generation", st.appliedGen).Msg("refresh discarded")
		return nil
	}

	// compared with what the session shows, not with the store, so a lapsed
	// or failing cache entry never swaps in an identical list
	enc, changed, err := f.cache.Store(ctx, sess.ID, ordered, st.encoded)
	if err != nil {
		log.Warn().Err(err).Msg("session cache write failed")
	}
	st.state = StateCompared

	st.appliedGen = gen
	st.lastErr = nil
	if changed || !st.loaded {
		st.snapshot = ordered
		st.encoded = enc
	}
	st.fromCache = false
	st.loaded = true
	st.state = StateApplied
	s.metrics.add(ctx, s.metrics.refreshApplied, 1, f.name)
	log.Debug().Bool("changed", changed).Int("records", len(ordered)).Msg("refresh applied")
	return nil
}

func (s *Service) mark(sess *Session, t *tracker, to RefreshState) {
	sess.mu.Lock()
	t.state = to
	sess.mu.Unlock()
}

// fail records a fetch or parse error. The previous snapshot stays; the
// error only lands in the slot when no newer generation has been applied.
func (s *Service) fail(ctx context.Context, sess *Session, t *tracker, feed string, gen uint64, err error) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t.inflight--
	if gen > t.appliedGen {
		t.lastErr = err
	}
	t.state = StateIdle
	s.metrics.add(ctx, s.metrics.refreshFailed, 1, feed)
	s.logger.Warn().Err(err).
		Str("feed", feed).
		Str("session", sess.ID).
		Uint64("generation", gen).
		Bool("has_snapshot", t.loaded).
		Msg("feed refresh failed")
	return err
}
