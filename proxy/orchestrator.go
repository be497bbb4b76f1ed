package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"proxy-bot/metrics"
	"proxy-bot/model"

	"go.uber.org/zap"
)

// State is the terminal state of a processed message.
type State int

const (
	// StateResolveNone means no member speaks for the message; it is left alone.
	StateResolveNone State = iota + 1
	// StateDone means the message was relayed and registered.
	StateDone
	// StateFailed means relaying failed; the original was not deleted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolveNone:
		return "resolve_none"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result describes how a message was handled.
type Result struct {
	State     State
	MemberID  int64
	RelayedID int64
	Err       error
}

// AttachmentFetcher downloads the bytes of incoming attachments.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, attachments []model.Attachment) ([]model.File, error)
}

// Options wires an Orchestrator.
type Options struct {
	Repo      model.Repository
	Platform  Platform
	Fetcher   AttachmentFetcher
	Relay     *WebhookRelay
	Registry  *MessageRegistry
	Autoproxy *AutoproxyResolver
	Prefixes  []string
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// pendingMessage is shared by every queued or running copy of one message id.
type pendingMessage struct {
	refs        int
	invalidated bool
}

// Orchestrator turns incoming messages into relays. Work is serialized per
// channel and runs in parallel across channels.
type Orchestrator struct {
	repo      model.Repository
	platform  Platform
	fetcher   AttachmentFetcher
	relay     *WebhookRelay
	registry  *MessageRegistry
	autoproxy *AutoproxyResolver
	prefixes  []string
	metrics   *metrics.Metrics
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  channelQueue

	mu      sync.Mutex
	pending map[int64]*pendingMessage
}

// NewOrchestrator creates an orchestrator from opts.
func NewOrchestrator(opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		repo:      opts.Repo,
		platform:  opts.Platform,
		fetcher:   opts.Fetcher,
		relay:     opts.Relay,
		registry:  opts.Registry,
		autoproxy: opts.Autoproxy,
		prefixes:  opts.Prefixes,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("orchestrator"),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[int64]*pendingMessage),
	}
}

// Dispatch queues ev behind earlier messages of its channel. It reports false
// after Close.
func (o *Orchestrator) Dispatch(ev model.MessageCreated) bool {
	o.track(ev.ID)
	ok := o.queue.submit(ev.ChannelID, func() {
		defer o.untrack(ev.ID)
		o.Process(o.ctx, ev)
	})
	if !ok {
		o.untrack(ev.ID)
	}
	return ok
}

// QueuedChannels returns the number of channels with pending work.
func (o *Orchestrator) QueuedChannels() int {
	return o.queue.active()
}

// Close waits for queued messages to finish and releases resources.
func (o *Orchestrator) Close() {
	o.queue.close()
	o.cancel()
}

func (o *Orchestrator) track(id int64) *pendingMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok {
		p = &pendingMessage{}
		o.pending[id] = p
	}
	p.refs++
	return p
}

func (o *Orchestrator) untrack(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok {
		return
	}
	p.refs--
	if p.refs <= 0 {
		delete(o.pending, id)
	}
}

func (o *Orchestrator) invalidated(p *pendingMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return p.invalidated
}

// HandleDeleted reacts to messages removed on the platform. Originals still
// being processed are marked so their delete is skipped, and relayed messages
// are forgotten.
func (o *Orchestrator) HandleDeleted(ctx context.Context, ev model.MessageDeleted) {
	for _, id := range ev.IDs {
		o.mu.Lock()
		if p, ok := o.pending[id]; ok {
			p.invalidated = true
		}
		o.mu.Unlock()

		if err := o.registry.Forget(ctx, id); err != nil {
			o.logger.Warn("Failed to forget deleted message",
				zap.Int64("channel", ev.ChannelID), zap.Int64("message", id), zap.Error(err))
		}
	}
}

func (o *Orchestrator) isCommand(content string) bool {
	for _, prefix := range o.prefixes {
		if prefix != "" && strings.HasPrefix(content, prefix) {
			return true
		}
	}
	return false
}

// Process runs one message through tag matching, autoproxy and relay.
func (o *Orchestrator) Process(ctx context.Context, ev model.MessageCreated) Result {
	p := o.track(ev.ID)
	defer o.untrack(ev.ID)

	res := o.process(ctx, ev, p)
	switch res.State {
	case StateDone:
		o.metrics.ProcessedMessages.WithLabelValues(metrics.OutcomeRelayed).Inc()
	case StateResolveNone:
		o.metrics.ProcessedMessages.WithLabelValues(metrics.OutcomeUnproxied).Inc()
	case StateFailed:
		o.metrics.ProcessedMessages.WithLabelValues(metrics.OutcomeFailed).Inc()
		level := zap.WarnLevel
		if errors.Is(res.Err, ErrPermission) {
			level = zap.InfoLevel
		}
		o.logger.Check(level, "Message not relayed").Write(
			zap.Int64("channel", ev.ChannelID),
			zap.Int64("message", ev.ID),
			zap.Int64("member", res.MemberID),
			zap.Error(res.Err))
	}
	return res
}

func (o *Orchestrator) process(ctx context.Context, ev model.MessageCreated, p *pendingMessage) Result {
	none := Result{State: StateResolveNone}
	failed := func(member int64, err error) Result {
		return Result{State: StateFailed, MemberID: member, Err: err}
	}

	if ev.GuildID == 0 || o.isCommand(ev.Content) {
		return none
	}
	if strings.TrimSpace(ev.Content) == "" && len(ev.Attachments) == 0 {
		return none
	}

	sys, err := o.repo.GetSystemByAccount(ctx, ev.AuthorID)
	if errors.Is(err, model.ErrNotFound) {
		return none
	}
	if err != nil {
		return failed(0, err)
	}

	if strings.HasPrefix(ev.Content, `\`) {
		if strings.HasPrefix(ev.Content, `\\`) {
			o.autoproxy.ClearLatch(sys.ID, ev.GuildID)
		}
		return none
	}

	server, err := o.repo.GetServer(ctx, ev.GuildID)
	if err != nil {
		return failed(0, err)
	}
	if server.IsBlacklisted(ev.ChannelID) {
		return none
	}
	settings, err := o.repo.GetSystemGuild(ctx, sys.ID, ev.GuildID)
	if err != nil {
		return failed(0, err)
	}
	if !settings.ProxyEnabled {
		return none
	}
	members, err := o.repo.GetMembers(ctx, sys.ID)
	if err != nil {
		return failed(0, err)
	}

	member, content, ok, err := o.resolve(ctx, ev, settings, members)
	if err != nil {
		return failed(0, err)
	}
	if !ok {
		return none
	}
	o.autoproxy.Remember(sys.ID, ev.GuildID, member.ID)

	if o.invalidated(p) {
		return failed(member.ID, ErrOriginalGone)
	}

	relayedID, err := o.relayMessage(ctx, ev, sys, member, content)
	if err != nil {
		return failed(member.ID, err)
	}

	record := model.Message{
		RelayedID:  relayedID,
		ChannelID:  ev.ChannelID,
		MemberID:   member.ID,
		SenderID:   ev.AuthorID,
		OriginalID: ev.ID,
		GuildID:    ev.GuildID,
	}
	if o.invalidated(p) {
		record.OriginalID = 0
		o.logger.Debug("Original deleted during relay", zap.Int64("message", ev.ID))
	} else if err := o.relay.DeleteOriginal(ctx, ev.ChannelID, ev.ID); err != nil {
		o.metrics.DeleteFailures.Inc()
		o.logger.Warn("Failed to delete original after relay",
			zap.Int64("channel", ev.ChannelID), zap.Int64("message", ev.ID), zap.Error(err))
	}

	if err := o.registry.Register(ctx, record); err != nil {
		o.logger.Error("Relayed message left unregistered",
			zap.Int64("relayed", relayedID), zap.Int64("member", member.ID), zap.Error(err))
	}
	if err := o.repo.IncrementMessageCount(ctx, member.ID); err != nil {
		o.logger.Debug("Failed to count message", zap.Int64("member", member.ID), zap.Error(err))
	}
	if server.ShouldLog(ev.ChannelID) {
		o.sendLog(ctx, server, ev, sys, member, relayedID, content)
	}

	return Result{State: StateDone, MemberID: member.ID, RelayedID: relayedID}
}

// resolve picks the speaking member: a tag match first, autoproxy otherwise.
func (o *Orchestrator) resolve(ctx context.Context, ev model.MessageCreated, settings model.SystemGuild, members []model.Member) (model.Member, string, bool, error) {
	hasAttachments := len(ev.Attachments) > 0

	match, collisions, ok := MatchMembers(ev.Content, hasAttachments, members)
	if ok {
		if len(collisions) > 0 {
			o.metrics.TagCollisions.Inc()
			ids := make([]int64, len(collisions))
			for i, m := range collisions {
				ids[i] = m.ID
			}
			o.logger.Info("Proxy tags of several members match",
				zap.Int64("system", settings.SystemID),
				zap.Int64("chosen", match.Member.ID),
				zap.Int64s("also_matched", ids))
		}
		return match.Member, match.Content(), true, nil
	}

	memberID, ok, err := o.autoproxy.Resolve(ctx, settings)
	if err != nil || !ok {
		return model.Member{}, "", false, err
	}
	for _, m := range members {
		if m.ID == memberID {
			return m, ev.Content, true, nil
		}
	}
	o.logger.Debug("Autoproxy resolved to a missing member",
		zap.Int64("system", settings.SystemID), zap.Int64("member", memberID))
	return model.Member{}, "", false, nil
}

func (o *Orchestrator) relayMessage(ctx context.Context, ev model.MessageCreated, sys model.System, member model.Member, content string) (int64, error) {
	var files []model.File
	if len(ev.Attachments) > 0 {
		var err error
		files, err = o.fetcher.Fetch(ctx, ev.Attachments)
		if err != nil {
			return 0, fmt.Errorf("fetching attachments: %w", err)
		}
	}

	var override *model.MemberGuild
	mg, err := o.repo.GetMemberGuild(ctx, member.ID, ev.GuildID)
	switch {
	case err == nil:
		override = &mg
	case !errors.Is(err, model.ErrNotFound):
		o.logger.Debug("Failed to load guild override", zap.Int64("member", member.ID), zap.Error(err))
	}

	return o.relay.Send(ctx, ev.ChannelID, RenderPersona(sys, member, override), content, files)
}

func (o *Orchestrator) sendLog(ctx context.Context, server model.Server, ev model.MessageCreated, sys model.System, member model.Member, relayedID int64, content string) {
	entry := model.LogEntry{
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		RelayedID:   relayedID,
		OriginalID:  ev.ID,
		SenderID:    ev.AuthorID,
		SystemHID:   sys.HID,
		SystemName:  sys.Name,
		MemberHID:   member.HID,
		MemberName:  member.Name,
		Content:     content,
		AvatarURL:   member.AvatarURL,
		Color:       member.Color,
		Attachments: len(ev.Attachments),
	}
	if err := o.platform.SendLogEntry(ctx, server.LogChannel, entry); err != nil {
		o.logger.Warn("Failed to post log entry", zap.Int64("log_channel", server.LogChannel), zap.Error(err))
	}
}
