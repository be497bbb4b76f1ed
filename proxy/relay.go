package proxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"proxy-bot/metrics"
	"proxy-bot/model"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	webhookName = "Proxy"

	maxUsernameLength = 80
	minUsernameLength = 2
	// usernamePadding is an invisible character used to reach the minimum length.
	usernamePadding = "\u17b5"
)

// Platform is the chat platform as the relay sees it. Implementations
// translate platform failures into ErrPermission, ErrUnknownWebhook,
// ErrUnknownMessage and *RateLimitedError.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID int64) error
	CreateChannelWebhook(ctx context.Context, channelID int64, name string) (model.Webhook, error)
	ExecuteWebhook(ctx context.Context, hook model.Webhook, msg model.WebhookMessage) (int64, error)
	SendLogEntry(ctx context.Context, logChannelID int64, entry model.LogEntry) error
}

// Persona is the name and avatar a relayed message is posted under.
type Persona struct {
	Name      string
	AvatarURL string
}

// RenderPersona builds the persona of a member, preferring guild overrides
// and appending the system tag.
func RenderPersona(sys model.System, member model.Member, guild *model.MemberGuild) Persona {
	name := member.Name
	if member.DisplayName != "" {
		name = member.DisplayName
	}
	avatar := member.AvatarURL
	if guild != nil {
		if guild.DisplayName != "" {
			name = guild.DisplayName
		}
		if guild.AvatarURL != "" {
			avatar = guild.AvatarURL
		}
	}
	if avatar == "" {
		avatar = sys.AvatarURL
	}
	if sys.Tag != "" {
		name += " " + sys.Tag
	}
	return Persona{Name: clampUsername(name), AvatarURL: avatar}
}

func clampUsername(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxUsernameLength {
		name = string([]rune(name)[:maxUsernameLength])
	}
	for utf8.RuneCountInString(name) < minUsernameLength {
		name += usernamePadding
	}
	return name
}

type limiterPool struct {
	mu    sync.Mutex
	m     map[int64]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(webhookID int64) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[int64]*rate.Limiter)
	}
	if l, ok := p.m[webhookID]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 5
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[webhookID] = l
	return l
}

func (p *limiterPool) drop(webhookID int64) {
	p.mu.Lock()
	delete(p.m, webhookID)
	p.mu.Unlock()
}

// hintBackoff follows a platform rate-limit hint when one is set and falls
// back to the wrapped backoff otherwise. Hinted waits have their own budget.
type hintBackoff struct {
	next     retry.Backoff
	hint     time.Duration
	waits    int
	maxWaits int
}

func (b *hintBackoff) Next() (time.Duration, bool) {
	if b.hint > 0 {
		d := b.hint
		b.hint = 0
		if b.waits >= b.maxWaits {
			return 0, true
		}
		b.waits++
		return d, false
	}
	return b.next.Next()
}

// WebhookRelay owns one webhook per channel and posts messages through it.
type WebhookRelay struct {
	platform Platform
	store    model.WebhookStore
	cfg      model.RelayConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	creates  singleflight.Group
	mu       sync.RWMutex
	cache    map[int64]model.Webhook
	limiters limiterPool
}

// NewWebhookRelay creates a relay. Zero tuning values fall back to defaults.
func NewWebhookRelay(platform Platform, store model.WebhookStore, cfg model.RelayConfig, m *metrics.Metrics, logger *zap.Logger) *WebhookRelay {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 250 * time.Millisecond
	}
	if cfg.DeleteAttempts < 1 {
		cfg.DeleteAttempts = 1
	}
	if cfg.MaxRateLimitWaits < 1 {
		cfg.MaxRateLimitWaits = 3
	}
	return &WebhookRelay{
		platform: platform,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("relay"),
		cache:    make(map[int64]model.Webhook),
		limiters: limiterPool{rps: cfg.WebhookRate, burst: cfg.WebhookBurst},
	}
}

func (r *WebhookRelay) cached(channelID int64) (model.Webhook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.cache[channelID]
	return hook, ok
}

// GetOrCreate returns the channel's webhook, loading it from storage or
// creating it on first use. Concurrent callers for one channel share a single
// creation.
func (r *WebhookRelay) GetOrCreate(ctx context.Context, channelID int64) (model.Webhook, error) {
	if hook, ok := r.cached(channelID); ok {
		return hook, nil
	}

	v, err, _ := r.creates.Do(strconv.FormatInt(channelID, 10), func() (interface{}, error) {
		if hook, ok := r.cached(channelID); ok {
			return hook, nil
		}

		hook, err := r.store.GetWebhook(ctx, channelID)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrNotFound):
			hook, err = r.platform.CreateChannelWebhook(ctx, channelID, webhookName)
			if err != nil {
				return model.Webhook{}, fmt.Errorf("creating webhook in channel %d: %w", channelID, err)
			}
			r.metrics.WebhooksCreated.Inc()
			r.logger.Info("Created webhook", zap.Int64("channel", channelID), zap.Int64("webhook", hook.ID))
			if err := r.store.InsertWebhook(ctx, hook); err != nil {
				r.logger.Warn("Failed to store webhook", zap.Int64("channel", channelID), zap.Error(err))
			}
		default:
			return model.Webhook{}, fmt.Errorf("loading webhook of channel %d: %w", channelID, err)
		}

		r.mu.Lock()
		r.cache[channelID] = hook
		r.mu.Unlock()
		return hook, nil
	})
	if err != nil {
		return model.Webhook{}, err
	}
	return v.(model.Webhook), nil
}

// evict forgets a webhook the platform no longer knows.
func (r *WebhookRelay) evict(ctx context.Context, hook model.Webhook) {
	r.mu.Lock()
	if cur, ok := r.cache[hook.ChannelID]; ok && cur.ID == hook.ID {
		delete(r.cache, hook.ChannelID)
	}
	r.mu.Unlock()
	r.limiters.drop(hook.ID)
	if err := r.store.DeleteWebhook(ctx, hook.ChannelID); err != nil {
		r.logger.Warn("Failed to delete stale webhook", zap.Int64("channel", hook.ChannelID), zap.Error(err))
	}
}

// SendAs posts content and files through hook under the given persona and
// returns the relayed message id. Transient failures are retried with
// exponential backoff; rate-limit responses wait for the platform's hint.
func (r *WebhookRelay) SendAs(ctx context.Context, hook model.Webhook, persona Persona, content string, files []model.File) (int64, error) {
	if err := r.limiters.get(hook.ID).Wait(ctx); err != nil {
		return 0, err
	}

	msg := model.WebhookMessage{
		Username:  persona.Name,
		AvatarURL: persona.AvatarURL,
		Content:   content,
		Files:     files,
	}
	b := &hintBackoff{
		next:     retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), retry.NewExponential(r.cfg.BaseBackoff)),
		maxWaits: r.cfg.MaxRateLimitWaits,
	}
	attempt := 0
	return retry.DoValue(ctx, b, func(ctx context.Context) (int64, error) {
		attempt++
		if attempt > 1 {
			r.metrics.SendRetries.Inc()
		}
		id, err := r.platform.ExecuteWebhook(ctx, hook, msg)
		if err == nil {
			return id, nil
		}

		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			r.metrics.RateLimitWaits.Inc()
			b.hint = max(rl.RetryAfter, time.Millisecond)
			r.logger.Debug("Webhook rate limited", zap.Int64("webhook", hook.ID), zap.Duration("retry_after", rl.RetryAfter))
			return 0, retry.RetryableError(err)
		case errors.Is(err, ErrPermission), errors.Is(err, ErrUnknownWebhook),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return 0, err
		default:
			r.logger.Debug("Webhook send failed", zap.Int64("webhook", hook.ID), zap.Int("attempt", attempt), zap.Error(err))
			return 0, retry.RetryableError(err)
		}
	})
}

// Send posts through the channel's webhook, recreating it once if the
// platform reports it unknown.
func (r *WebhookRelay) Send(ctx context.Context, channelID int64, persona Persona, content string, files []model.File) (int64, error) {
	hook, err := r.GetOrCreate(ctx, channelID)
	if err != nil {
		return 0, err
	}
	id, err := r.SendAs(ctx, hook, persona, content, files)
	if !errors.Is(err, ErrUnknownWebhook) {
		return id, err
	}

	r.logger.Info("Webhook vanished, recreating", zap.Int64("channel", channelID), zap.Int64("webhook", hook.ID))
	r.evict(ctx, hook)
	hook, err = r.GetOrCreate(ctx, channelID)
	if err != nil {
		return 0, err
	}
	return r.SendAs(ctx, hook, persona, content, files)
}

// DeleteOriginal removes the message a relay replaced. A message that is
// already gone counts as deleted. Permission errors are not retried.
func (r *WebhookRelay) DeleteOriginal(ctx context.Context, channelID, messageID int64) error {
	b := retry.WithMaxRetries(uint64(r.cfg.DeleteAttempts-1), retry.NewExponential(r.cfg.BaseBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.platform.DeleteMessage(ctx, channelID, messageID)
		switch {
		case err == nil, errors.Is(err, ErrUnknownMessage):
			return nil
		case errors.Is(err, ErrPermission),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			return retry.RetryableError(err)
		}
	})
}
