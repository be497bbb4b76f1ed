package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"proxy-bot/model"
)

// dbSystemGuild represents a system's settings for one guild.
type dbSystemGuild struct {
	System          int64         `db:"system"`
	Guild           int64         `db:"guild"`
	ProxyEnabled    bool          `db:"proxy_enabled"`
	AutoproxyMode   int           `db:"autoproxy_mode"`
	AutoproxyMember sql.NullInt64 `db:"autoproxy_member"`
}

// GetSystemGuild retrieves a system's settings for a guild, falling back to
// the defaults when none are stored.
func (r *Repository) GetSystemGuild(ctx context.Context, systemID, guildID int64) (model.SystemGuild, error) {
	var row dbSystemGuild
	err := r.db.GetContext(ctx, &row, "SELECT * FROM system_guild WHERE system = ? AND guild = ?", systemID, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSystemGuild(systemID, guildID), nil
	}
	if err != nil {
		return model.SystemGuild{}, fmt.Errorf("getting settings of system %d in guild %d: %w", systemID, guildID, err)
	}

	mode, err := model.ParseAutoproxyMode(row.AutoproxyMode)
	if err != nil {
		return model.SystemGuild{}, fmt.Errorf("settings of system %d in guild %d: %w", systemID, guildID, err)
	}
	return model.SystemGuild{
		SystemID:        row.System,
		GuildID:         row.Guild,
		ProxyEnabled:    row.ProxyEnabled,
		AutoproxyMode:   mode,
		AutoproxyMember: row.AutoproxyMember.Int64,
	}, nil
}

// UpsertSystemGuild creates or replaces a system's settings for a guild.
func (r *Repository) UpsertSystemGuild(ctx context.Context, sg model.SystemGuild) error {
	if _, err := model.ParseAutoproxyMode(int(sg.AutoproxyMode)); err != nil {
		return err
	}
	query := `INSERT INTO system_guild (system, guild, proxy_enabled, autoproxy_mode, autoproxy_member)
	          VALUES (:system, :guild, :proxy_enabled, :autoproxy_mode, :autoproxy_member)
	          ON CONFLICT(system, guild) DO UPDATE SET
	              proxy_enabled = excluded.proxy_enabled,
	              autoproxy_mode = excluded.autoproxy_mode,
	              autoproxy_member = excluded.autoproxy_member`
	row := dbSystemGuild{
		System:          sg.SystemID,
		Guild:           sg.GuildID,
		ProxyEnabled:    sg.ProxyEnabled,
		AutoproxyMode:   int(sg.AutoproxyMode),
		AutoproxyMember: nullInt64(sg.AutoproxyMember),
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("saving settings of system %d in guild %d: %w", sg.SystemID, sg.GuildID, err)
	}
	return nil
}

// dbServer represents a guild's bot configuration.
type dbServer struct {
	ID                int64         `db:"id"`
	LogChannel        sql.NullInt64 `db:"log_channel"`
	LogBlacklist      string        `db:"log_blacklist"`
	Blacklist         string        `db:"blacklist"`
	LogCleanupEnabled bool          `db:"log_cleanup_enabled"`
}

// GetServer retrieves a guild's configuration, or an empty one when none is stored.
func (r *Repository) GetServer(ctx context.Context, guildID int64) (model.Server, error) {
	var row dbServer
	err := r.db.GetContext(ctx, &row, "SELECT * FROM servers WHERE id = ?", guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Server{ID: guildID}, nil
	}
	if err != nil {
		return model.Server{}, fmt.Errorf("getting server %d: %w", guildID, err)
	}

	server := model.Server{
		ID:                row.ID,
		LogChannel:        row.LogChannel.Int64,
		LogCleanupEnabled: row.LogCleanupEnabled,
	}
	if err := json.Unmarshal([]byte(row.LogBlacklist), &server.LogBlacklist); err != nil {
		return model.Server{}, fmt.Errorf("server %d log blacklist: %w", guildID, err)
	}
	if err := json.Unmarshal([]byte(row.Blacklist), &server.Blacklist); err != nil {
		return model.Server{}, fmt.Errorf("server %d blacklist: %w", guildID, err)
	}
	return server, nil
}

// UpsertServer creates or replaces a guild's configuration.
func (r *Repository) UpsertServer(ctx context.Context, s model.Server) error {
	logBlacklist, err := json.Marshal(orEmpty(s.LogBlacklist))
	if err != nil {
		return err
	}
	blacklist, err := json.Marshal(orEmpty(s.Blacklist))
	if err != nil {
		return err
	}
	query := `INSERT INTO servers (id, log_channel, log_blacklist, blacklist, log_cleanup_enabled)
	          VALUES (:id, :log_channel, :log_blacklist, :blacklist, :log_cleanup_enabled)
	          ON CONFLICT(id) DO UPDATE SET
	              log_channel = excluded.log_channel,
	              log_blacklist = excluded.log_blacklist,
	              blacklist = excluded.blacklist,
	              log_cleanup_enabled = excluded.log_cleanup_enabled`
	row := dbServer{
		ID:                s.ID,
		LogChannel:        nullInt64(s.LogChannel),
		LogBlacklist:      string(logBlacklist),
		Blacklist:         string(blacklist),
		LogCleanupEnabled: s.LogCleanupEnabled,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("saving server %d: %w", s.ID, err)
	}
	return nil
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
