package bot

import (
	"context"
	"time"

	"proxy-bot/metrics"
	"proxy-bot/model"
	"proxy-bot/proxy"
	"proxy-bot/status"
	"proxy-bot/utils"
	"proxy-bot/utils/database"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	Session      *discordgo.Session
	Repo         *database.Repository
	Metrics      *metrics.Metrics
	Switches     *proxy.SwitchTracker
	Autoproxy    *proxy.AutoproxyResolver
	Relay        *proxy.WebhookRelay
	Registry     *proxy.MessageRegistry
	Orchestrator *proxy.Orchestrator
	Logger       *zap.Logger

	config    *model.Config
	scheduler *Scheduler
	status    *status.Server
}

func (b *Bot) GetConfig() *model.Config {
	return b.config
}

// GatewayLatency reports the last heartbeat round trip, or 0 before the
// first heartbeat has been acknowledged.
func (b *Bot) GatewayLatency() time.Duration {
	b.Session.RLock()
	sent, ack := b.Session.LastHeartbeatSent, b.Session.LastHeartbeatAck
	b.Session.RUnlock()
	return heartbeatLatency(sent, ack)
}

func heartbeatLatency(sent, ack time.Time) time.Duration {
	if sent.IsZero() || ack.Before(sent) {
		return 0
	}
	return ack.Sub(sent)
}

// QueuedChannels reports channels with messages waiting to be relayed.
func (b *Bot) QueuedChannels() int {
	return b.Orchestrator.QueuedChannels()
}

// New creates the session and wires the proxy core on top of repo.
func New(cfg *model.Config, repo *database.Repository, logger *zap.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	dg.StateEnabled = false
	// Rate limits surface as errors so the relay can budget its own waits.
	dg.ShouldRetryOnRateLimit = false
	dg.Client = utils.GlobalHTTPClient

	m := metrics.New()
	platform := NewPlatform(dg)
	switches := proxy.NewSwitchTracker(repo, logger)
	autoproxy := proxy.NewAutoproxyResolver(switches, cfg.LatchTimeout, logger)
	switches.OnSwitchOut(autoproxy.ClearSystem)
	relay := proxy.NewWebhookRelay(platform, repo, cfg.Relay, m, logger)
	registry := proxy.NewMessageRegistry(repo, cfg.Relay.MaxAttempts, cfg.Relay.BaseBackoff, m, logger)

	b := &Bot{
		Session:   dg,
		Repo:      repo,
		Metrics:   m,
		Switches:  switches,
		Autoproxy: autoproxy,
		Relay:     relay,
		Registry:  registry,
		Orchestrator: proxy.NewOrchestrator(proxy.Options{
			Repo:      repo,
			Platform:  platform,
			Fetcher:   utils.NewDownloader(nil, cfg.Relay.MaxAttachmentBytes),
			Relay:     relay,
			Registry:  registry,
			Autoproxy: autoproxy,
			Prefixes:  cfg.Prefixes,
			Metrics:   m,
			Logger:    logger,
		}),
		Logger: logger,
		config: cfg,
	}
	b.scheduler = NewScheduler(registry, autoproxy, cfg, logger)
	if cfg.StatusAddr != "" {
		b.status = status.NewServer(cfg.StatusAddr, b, m.Registry, logger)
	}
	return b, nil
}

// Close stops background work, waits for queued relays and releases the
// session and database.
func (b *Bot) Close() {
	b.Logger.Info("Gracefully shutting down")
	b.scheduler.Stop()
	b.Orchestrator.Close()

	if b.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.status.Shutdown(ctx); err != nil {
			b.Logger.Warn("Status server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if err := b.Session.Close(); err != nil {
		b.Logger.Warn("Closing session failed", zap.Error(err))
	}
	if err := b.Repo.Close(); err != nil {
		b.Logger.Warn("Closing database failed", zap.Error(err))
	}
}
