package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proxy-bot/model"

	"go.uber.org/zap"
)

// FrontSource reports the members currently fronting for a system, primary first.
type FrontSource interface {
	CurrentFront(ctx context.Context, systemID int64) ([]int64, error)
}

type latchKey struct {
	system int64
	guild  int64
}

type latch struct {
	mu     sync.RWMutex
	member int64
	at     time.Time
}

// AutoproxyResolver picks the member that speaks for untagged messages. It owns
// the latch state, keyed by (system, guild); each key has its own lock.
type AutoproxyResolver struct {
	front   FrontSource
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.Mutex
	latches map[latchKey]*latch
}

// NewAutoproxyResolver creates a resolver. A zero timeout keeps latches forever.
func NewAutoproxyResolver(front FrontSource, timeout time.Duration, logger *zap.Logger) *AutoproxyResolver {
	return &AutoproxyResolver{
		front:   front,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.Named("autoproxy"),
		latches: make(map[latchKey]*latch),
	}
}

func (r *AutoproxyResolver) entry(key latchKey, create bool) *latch {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.latches[key]
	if !ok && create {
		l = &latch{}
		r.latches[key] = l
	}
	return l
}

// Resolve returns the member selected by the guild's autoproxy mode, or false
// when nobody should speak.
func (r *AutoproxyResolver) Resolve(ctx context.Context, settings model.SystemGuild) (int64, bool, error) {
	switch settings.AutoproxyMode {
	case model.AutoproxyOff:
		return 0, false, nil
	case model.AutoproxyFront:
		front, err := r.front.CurrentFront(ctx, settings.SystemID)
		if err != nil {
			return 0, false, fmt.Errorf("resolving front of system %d: %w", settings.SystemID, err)
		}
		if len(front) == 0 {
			return 0, false, nil
		}
		return front[0], true, nil
	case model.AutoproxyLatch:
		member, ok := r.Latched(settings.SystemID, settings.GuildID)
		return member, ok, nil
	case model.AutoproxyMember:
		if settings.AutoproxyMember == 0 {
			return 0, false, nil
		}
		return settings.AutoproxyMember, true, nil
	default:
		return 0, false, fmt.Errorf("unknown autoproxy mode %d", settings.AutoproxyMode)
	}
}

// Remember records member as the latest speaker of a system in a guild.
func (r *AutoproxyResolver) Remember(systemID, guildID, memberID int64) {
	l := r.entry(latchKey{systemID, guildID}, true)
	l.mu.Lock()
	l.member = memberID
	l.at = r.now()
	l.mu.Unlock()
}

// Latched returns the remembered speaker, if any and not expired.
func (r *AutoproxyResolver) Latched(systemID, guildID int64) (int64, bool) {
	l := r.entry(latchKey{systemID, guildID}, false)
	if l == nil {
		return 0, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.member == 0 || r.expired(l.at) {
		return 0, false
	}
	return l.member, true
}

func (r *AutoproxyResolver) expired(at time.Time) bool {
	return r.timeout > 0 && r.now().Sub(at) > r.timeout
}

// ClearLatch forgets the latest speaker of a system in a guild.
func (r *AutoproxyResolver) ClearLatch(systemID, guildID int64) {
	r.mu.Lock()
	delete(r.latches, latchKey{systemID, guildID})
	r.mu.Unlock()
}

// ClearSystem forgets the latest speaker of a system in every guild.
func (r *AutoproxyResolver) ClearSystem(systemID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.latches {
		if key.system == systemID {
			delete(r.latches, key)
		}
	}
	r.logger.Debug("Cleared latches", zap.Int64("system", systemID))
}

// Sweep drops expired latches and returns how many were removed.
func (r *AutoproxyResolver) Sweep() int {
	if r.timeout <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, l := range r.latches {
		l.mu.RLock()
		stale := r.expired(l.at)
		l.mu.RUnlock()
		if stale {
			delete(r.latches, key)
			removed++
		}
	}
	return removed
}
