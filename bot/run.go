package bot

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run connects to the gateway, starts background tasks and blocks until the
// process is asked to stop.
func (b *Bot) Run() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	b.scheduler.Start()
	if b.status != nil {
		b.status.Start()
	}

	b.Logger.Info("Bot is now running. Press CTRL-C to exit.",
		zap.Strings("prefixes", b.config.Prefixes),
		zap.Duration("latch_timeout", b.config.LatchTimeout))
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	signal.Stop(sc)
	return nil
}
