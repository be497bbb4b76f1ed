package database

import (
	"context"
	"database/sql"
	"fmt"

	"proxy-bot/model"
)

// dbMessage represents a relayed-message record.
type dbMessage struct {
	MID         int64         `db:"mid"`
	Channel     int64         `db:"channel"`
	Member      int64         `db:"member"`
	Sender      int64         `db:"sender"`
	OriginalMID sql.NullInt64 `db:"original_mid"`
	Guild       sql.NullInt64 `db:"guild"`
}

func toDomainMessage(row dbMessage) model.Message {
	return model.Message{
		RelayedID:  row.MID,
		ChannelID:  row.Channel,
		MemberID:   row.Member,
		SenderID:   row.Sender,
		OriginalID: row.OriginalMID.Int64,
		GuildID:    row.Guild.Int64,
	}
}

// UpsertMessage stores a relayed-message record keyed by its relayed id.
func (r *Repository) UpsertMessage(ctx context.Context, msg model.Message) error {
	query := `INSERT INTO messages (mid, channel, member, sender, original_mid, guild)
	          VALUES (:mid, :channel, :member, :sender, :original_mid, :guild)
	          ON CONFLICT(mid) DO UPDATE SET
	              channel = excluded.channel,
	              member = excluded.member,
	              sender = excluded.sender,
	              original_mid = excluded.original_mid,
	              guild = excluded.guild`
	row := dbMessage{
		MID:         msg.RelayedID,
		Channel:     msg.ChannelID,
		Member:      msg.MemberID,
		Sender:      msg.SenderID,
		OriginalMID: nullInt64(msg.OriginalID),
		Guild:       nullInt64(msg.GuildID),
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("saving message %d: %w", msg.RelayedID, err)
	}
	return nil
}

// GetMessage retrieves the record of a relayed message.
func (r *Repository) GetMessage(ctx context.Context, relayedID int64) (model.Message, error) {
	var row dbMessage
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM messages WHERE mid = ?", relayedID); err != nil {
		return model.Message{}, fmt.Errorf("getting message %d: %w", relayedID, notFound(err))
	}
	return toDomainMessage(row), nil
}

// GetMessagesBySender retrieves the most recent relays of a sender in a channel, newest first.
func (r *Repository) GetMessagesBySender(ctx context.Context, senderID, channelID int64, limit int) ([]model.Message, error) {
	var rows []dbMessage
	query := "SELECT * FROM messages WHERE sender = ? AND channel = ? ORDER BY mid DESC LIMIT ?"
	if err := r.db.SelectContext(ctx, &rows, query, senderID, channelID, limit); err != nil {
		return nil, fmt.Errorf("getting messages of sender %d in channel %d: %w", senderID, channelID, err)
	}
	messages := make([]model.Message, len(rows))
	for i, row := range rows {
		messages[i] = toDomainMessage(row)
	}
	return messages, nil
}

// DeleteMessage removes a relayed-message record. Deleting a missing record is not an error.
func (r *Repository) DeleteMessage(ctx context.Context, relayedID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE mid = ?", relayedID); err != nil {
		return fmt.Errorf("deleting message %d: %w", relayedID, err)
	}
	return nil
}

// DeleteMessagesBefore removes every record whose relayed id is lower than relayedID
// and returns how many were removed.
func (r *Repository) DeleteMessagesBefore(ctx context.Context, relayedID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE mid < ?", relayedID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages before %d: %w", relayedID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}
