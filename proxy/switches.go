package proxy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"proxy-bot/model"
	"proxy-bot/utils"

	"go.uber.org/zap"
)

const historyPageSize = 50

type frontEntry struct {
	latest model.Switch
	found  bool
}

// SwitchTracker maintains front history per system. Writes for one system are
// serialized; the latest switch of each system is cached for front lookups.
type SwitchTracker struct {
	store  model.SwitchStore
	logger *zap.Logger
	locks  utils.KeyedMutex[int64]

	mu    sync.RWMutex
	cache map[int64]frontEntry

	onSwitchOut func(systemID int64)
}

// NewSwitchTracker creates a tracker backed by store.
func NewSwitchTracker(store model.SwitchStore, logger *zap.Logger) *SwitchTracker {
	return &SwitchTracker{
		store:  store,
		logger: logger.Named("switches"),
		cache:  make(map[int64]frontEntry),
	}
}

// OnSwitchOut registers fn to run when a switch to nobody becomes a system's latest switch.
func (t *SwitchTracker) OnSwitchOut(fn func(systemID int64)) {
	t.onSwitchOut = fn
}

func (t *SwitchTracker) cached(systemID int64) (frontEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.cache[systemID]
	return e, ok
}

func (t *SwitchTracker) setCached(systemID int64, e frontEntry) {
	t.mu.Lock()
	t.cache[systemID] = e
	t.mu.Unlock()
}

// loadLatest must be called with the system's lock held.
func (t *SwitchTracker) loadLatest(ctx context.Context, systemID int64) (frontEntry, error) {
	if e, ok := t.cached(systemID); ok {
		return e, nil
	}
	sw, err := t.store.GetLatestSwitch(ctx, systemID)
	if errors.Is(err, model.ErrNotFound) {
		e := frontEntry{}
		t.setCached(systemID, e)
		return e, nil
	}
	if err != nil {
		return frontEntry{}, fmt.Errorf("loading latest switch of system %d: %w", systemID, err)
	}
	e := frontEntry{latest: sw, found: true}
	t.setCached(systemID, e)
	return e, nil
}

// RecordSwitch stores a switch to members at the given time. An empty member
// list records a switch-out. Back-dated switches are kept in history but do not
// change the current front.
func (t *SwitchTracker) RecordSwitch(ctx context.Context, systemID int64, members []int64, at time.Time) (model.Switch, error) {
	seen := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			return model.Switch{}, fmt.Errorf("member %d: %w", m, ErrDuplicateSwitchMember)
		}
		seen[m] = struct{}{}
	}

	unlock := t.locks.Lock(systemID)
	defer unlock()

	prev, err := t.loadLatest(ctx, systemID)
	if err != nil {
		return model.Switch{}, err
	}

	sw, err := t.store.InsertSwitch(ctx, systemID, at, members)
	if errors.Is(err, model.ErrConflict) {
		return model.Switch{}, fmt.Errorf("switch at %s: %w", at.Format(time.RFC3339Nano), ErrSwitchTimestampTaken)
	}
	if err != nil {
		return model.Switch{}, fmt.Errorf("recording switch for system %d: %w", systemID, err)
	}

	if prev.found && !sw.Timestamp.After(prev.latest.Timestamp) {
		t.logger.Debug("Recorded back-dated switch",
			zap.Int64("system", systemID),
			zap.Time("at", sw.Timestamp),
			zap.Time("latest", prev.latest.Timestamp))
		return sw, nil
	}

	t.setCached(systemID, frontEntry{latest: sw, found: true})
	t.logger.Info("Recorded switch", zap.Int64("system", systemID), zap.Int64s("members", sw.Members))
	if len(sw.Members) == 0 && t.onSwitchOut != nil {
		t.onSwitchOut(systemID)
	}
	return sw, nil
}

// CurrentFront returns the members of the system's latest switch, primary first.
// It is empty when nobody is fronting.
func (t *SwitchTracker) CurrentFront(ctx context.Context, systemID int64) ([]int64, error) {
	e, ok := t.cached(systemID)
	if !ok {
		unlock := t.locks.Lock(systemID)
		var err error
		e, err = t.loadLatest(ctx, systemID)
		unlock()
		if err != nil {
			return nil, err
		}
	}
	if !e.found {
		return []int64{}, nil
	}
	return slices.Clone(e.latest.Members), nil
}

// History yields the switches of a system with from <= timestamp < to, newest
// first. A zero from or to leaves that side unbounded. Each iteration starts a
// fresh read, so the sequence can be ranged over again.
func (t *SwitchTracker) History(ctx context.Context, systemID int64, from, to time.Time) iter.Seq2[model.Switch, error] {
	return func(yield func(model.Switch, error) bool) {
		before := to
		for {
			page, err := t.store.GetSwitches(ctx, systemID, before, historyPageSize)
			if err != nil {
				yield(model.Switch{}, fmt.Errorf("reading switch history of system %d: %w", systemID, err))
				return
			}
			for _, sw := range page {
				if !from.IsZero() && sw.Timestamp.Before(from) {
					return
				}
				if !yield(sw, nil) {
					return
				}
			}
			if len(page) < historyPageSize {
				return
			}
			before = page[len(page)-1].Timestamp
		}
	}
}
