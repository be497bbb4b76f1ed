package database

import (
	"context"
	"fmt"

	"proxy-bot/model"
)

type dbWebhook struct {
	Channel int64  `db:"channel"`
	Webhook int64  `db:"webhook"`
	Token   string `db:"token"`
}

// GetWebhook retrieves the webhook stored for a channel.
func (r *Repository) GetWebhook(ctx context.Context, channelID int64) (model.Webhook, error) {
	var row dbWebhook
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM webhooks WHERE channel = ?", channelID); err != nil {
		return model.Webhook{}, fmt.Errorf("getting webhook of channel %d: %w", channelID, notFound(err))
	}
	return model.Webhook{ChannelID: row.Channel, ID: row.Webhook, Token: row.Token}, nil
}

// InsertWebhook stores a channel's webhook, replacing any previous one.
func (r *Repository) InsertWebhook(ctx context.Context, hook model.Webhook) error {
	query := `INSERT INTO webhooks (channel, webhook, token) VALUES (:channel, :webhook, :token)
	          ON CONFLICT(channel) DO UPDATE SET webhook = excluded.webhook, token = excluded.token`
	row := dbWebhook{Channel: hook.ChannelID, Webhook: hook.ID, Token: hook.Token}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("saving webhook of channel %d: %w", hook.ChannelID, err)
	}
	return nil
}

// DeleteWebhook forgets a channel's webhook.
func (r *Repository) DeleteWebhook(ctx context.Context, channelID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM webhooks WHERE channel = ?", channelID); err != nil {
		return fmt.Errorf("deleting webhook of channel %d: %w", channelID, err)
	}
	return nil
}
