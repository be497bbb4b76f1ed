package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxy-bot/metrics"
	"proxy-bot/model"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// MessageRegistry maps relayed messages back to their members and originals.
type MessageRegistry struct {
	store       model.MessageStore
	maxAttempts int
	backoff     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewMessageRegistry creates a registry that retries failed writes up to maxAttempts times.
func NewMessageRegistry(store model.MessageStore, maxAttempts int, backoff time.Duration, m *metrics.Metrics, logger *zap.Logger) *MessageRegistry {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &MessageRegistry{
		store:       store,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		metrics:     m,
		logger:      logger.Named("registry"),
	}
}

// Register records a relayed message, retrying storage failures with backoff.
func (r *MessageRegistry) Register(ctx context.Context, msg model.Message) error {
	b := retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewExponential(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.store.UpsertMessage(ctx, msg); err != nil {
			r.logger.Debug("Registering message failed", zap.Int64("relayed", msg.RelayedID), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.metrics.RegisterFailures.Inc()
		return fmt.Errorf("registering relayed message %d: %w", msg.RelayedID, err)
	}
	return nil
}

// LookupByRelayed returns the record of a relayed message, or false when none exists.
func (r *MessageRegistry) LookupByRelayed(ctx context.Context, relayedID int64) (model.Message, bool, error) {
	msg, err := r.store.GetMessage(ctx, relayedID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	return msg, true, nil
}

// LookupOriginalsBySender returns a sender's latest relays in a channel, newest first.
func (r *MessageRegistry) LookupOriginalsBySender(ctx context.Context, senderID, channelID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	return r.store.GetMessagesBySender(ctx, senderID, channelID, limit)
}

// Forget removes the record of a relayed message.
func (r *MessageRegistry) Forget(ctx context.Context, relayedID int64) error {
	return r.store.DeleteMessage(ctx, relayedID)
}

// ForgetBefore removes every record relayed before cutoff.
func (r *MessageRegistry) ForgetBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.store.DeleteMessagesBefore(ctx, model.SnowflakeAt(cutoff))
	if err != nil {
		return 0, err
	}
	r.metrics.RecordsPurged.Add(float64(n))
	if n > 0 {
		r.logger.Info("Purged relayed-message records", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
