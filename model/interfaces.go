package model

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a row violates a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// SystemStore looks up systems and the accounts linked to them.
type SystemStore interface {
	GetSystemByAccount(ctx context.Context, userID int64) (System, error)
	GetSystem(ctx context.Context, id int64) (System, error)
}

// MemberStore reads members and their per-guild overrides.
type MemberStore interface {
	GetMembers(ctx context.Context, systemID int64) ([]Member, error)
	GetMemberGuild(ctx context.Context, memberID, guildID int64) (MemberGuild, error)
	IncrementMessageCount(ctx context.Context, memberID int64) error
}

// GuildSettingsStore reads per-guild settings.
type GuildSettingsStore interface {
	GetSystemGuild(ctx context.Context, systemID, guildID int64) (SystemGuild, error)
	GetServer(ctx context.Context, guildID int64) (Server, error)
}

// MessageStore persists relayed-message records.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg Message) error
	GetMessage(ctx context.Context, relayedID int64) (Message, error)
	GetMessagesBySender(ctx context.Context, senderID, channelID int64, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, relayedID int64) error
	DeleteMessagesBefore(ctx context.Context, relayedID int64) (int64, error)
}

// SwitchStore persists front history. GetSwitches returns switches strictly
// older than before (no upper bound when before is zero), newest first.
type SwitchStore interface {
	InsertSwitch(ctx context.Context, systemID int64, at time.Time, members []int64) (Switch, error)
	GetLatestSwitch(ctx context.Context, systemID int64) (Switch, error)
	GetSwitches(ctx context.Context, systemID int64, before time.Time, limit int) ([]Switch, error)
}

// WebhookStore persists the webhook owned in each channel.
type WebhookStore interface {
	GetWebhook(ctx context.Context, channelID int64) (Webhook, error)
	InsertWebhook(ctx context.Context, hook Webhook) error
	DeleteWebhook(ctx context.Context, channelID int64) error
}

// Repository is everything the proxy core needs from storage.
type Repository interface {
	SystemStore
	MemberStore
	GuildSettingsStore
	MessageStore
	SwitchStore
	WebhookStore
}
