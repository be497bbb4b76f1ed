package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"proxy-bot/model"
)

const birthdayLayout = "2006-01-02"

// dbMember represents a member as stored in the database.
type dbMember struct {
	ID                 int64          `db:"id"`
	HID                string         `db:"hid"`
	System             int64          `db:"system"`
	Color              string         `db:"color"`
	AvatarURL          string         `db:"avatar_url"`
	Name               string         `db:"name"`
	DisplayName        string         `db:"display_name"`
	Birthday           sql.NullString `db:"birthday"`
	Pronouns           string         `db:"pronouns"`
	Description        string         `db:"description"`
	ProxyTags          string         `db:"proxy_tags"` // JSON array of model.ProxyTag
	KeepProxy          bool           `db:"keep_proxy"`
	Created            int64          `db:"created"`
	MessageCount       int            `db:"message_count"`
	DescriptionPrivacy int            `db:"description_privacy"`
	NamePrivacy        int            `db:"name_privacy"`
	AvatarPrivacy      int            `db:"avatar_privacy"`
	BirthdayPrivacy    int            `db:"birthday_privacy"`
	PronounPrivacy     int            `db:"pronoun_privacy"`
	MetadataPrivacy    int            `db:"metadata_privacy"`
}

func toDomainMember(row dbMember) (model.Member, error) {
	m := model.Member{
		ID:           row.ID,
		HID:          row.HID,
		SystemID:     row.System,
		Name:         row.Name,
		DisplayName:  row.DisplayName,
		Color:        row.Color,
		AvatarURL:    row.AvatarURL,
		Pronouns:     row.Pronouns,
		Description:  row.Description,
		KeepProxy:    row.KeepProxy,
		Created:      time.UnixMilli(row.Created).UTC(),
		MessageCount: row.MessageCount,
	}
	if row.Birthday.Valid && row.Birthday.String != "" {
		b, err := time.Parse(birthdayLayout, row.Birthday.String)
		if err != nil {
			return model.Member{}, fmt.Errorf("member %d birthday: %w", row.ID, err)
		}
		m.Birthday = &b
	}
	if err := json.Unmarshal([]byte(row.ProxyTags), &m.ProxyTags); err != nil {
		return model.Member{}, fmt.Errorf("member %d proxy tags: %w", row.ID, err)
	}
	err := parsePrivacies(
		privacyField{row.DescriptionPrivacy, &m.DescriptionPrivacy},
		privacyField{row.NamePrivacy, &m.NamePrivacy},
		privacyField{row.AvatarPrivacy, &m.AvatarPrivacy},
		privacyField{row.BirthdayPrivacy, &m.BirthdayPrivacy},
		privacyField{row.PronounPrivacy, &m.PronounPrivacy},
		privacyField{row.MetadataPrivacy, &m.MetadataPrivacy},
	)
	if err != nil {
		return model.Member{}, fmt.Errorf("member %d: %w", row.ID, err)
	}
	return m, nil
}

func encodeProxyTags(tags []model.ProxyTag) (string, error) {
	for _, tag := range tags {
		if err := tag.Validate(); err != nil {
			return "", err
		}
	}
	if tags == nil {
		tags = []model.ProxyTag{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CreateMember inserts a new member into its system with a freshly generated hid.
// Degenerate proxy tags are rejected with model.ErrEmptyProxyTag.
func (r *Repository) CreateMember(ctx context.Context, m model.Member) (model.Member, error) {
	tags, err := encodeProxyTags(m.ProxyTags)
	if err != nil {
		return model.Member{}, fmt.Errorf("creating member %q: %w", m.Name, err)
	}
	if m.Created.IsZero() {
		m.Created = time.Now()
	}
	var birthday sql.NullString
	if m.Birthday != nil {
		birthday = sql.NullString{String: m.Birthday.Format(birthdayLayout), Valid: true}
	}

	query := `INSERT INTO members (hid, system, color, avatar_url, name, display_name, birthday, pronouns, description,
	              proxy_tags, keep_proxy, created, message_count, description_privacy, name_privacy, avatar_privacy,
	              birthday_privacy, pronoun_privacy, metadata_privacy)
	          VALUES (:hid, :system, :color, :avatar_url, :name, :display_name, :birthday, :pronouns, :description,
	              :proxy_tags, :keep_proxy, :created, :message_count, :description_privacy, :name_privacy, :avatar_privacy,
	              :birthday_privacy, :pronoun_privacy, :metadata_privacy)`

	for attempt := 0; attempt < hidAttempts; attempt++ {
		hid, err := model.NewHID()
		if err != nil {
			return model.Member{}, fmt.Errorf("generating member hid: %w", err)
		}
		row := dbMember{
			HID:                hid,
			System:             m.SystemID,
			Color:              m.Color,
			AvatarURL:          m.AvatarURL,
			Name:               m.Name,
			DisplayName:        m.DisplayName,
			Birthday:           birthday,
			Pronouns:           m.Pronouns,
			Description:        m.Description,
			ProxyTags:          tags,
			KeepProxy:          m.KeepProxy,
			Created:            m.Created.UnixMilli(),
			MessageCount:       m.MessageCount,
			DescriptionPrivacy: orPublic(m.DescriptionPrivacy),
			NamePrivacy:        orPublic(m.NamePrivacy),
			AvatarPrivacy:      orPublic(m.AvatarPrivacy),
			BirthdayPrivacy:    orPublic(m.BirthdayPrivacy),
			PronounPrivacy:     orPublic(m.PronounPrivacy),
			MetadataPrivacy:    orPublic(m.MetadataPrivacy),
		}
		result, err := r.db.NamedExecContext(ctx, query, row)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return model.Member{}, fmt.Errorf("failed to insert member: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return model.Member{}, fmt.Errorf("failed to get last insert ID: %w", err)
		}
		return r.GetMember(ctx, id)
	}
	return model.Member{}, fmt.Errorf("failed to generate a unique member hid after %d attempts", hidAttempts)
}

// GetMember retrieves a single member by id.
func (r *Repository) GetMember(ctx context.Context, id int64) (model.Member, error) {
	var row dbMember
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM members WHERE id = ?", id); err != nil {
		return model.Member{}, fmt.Errorf("getting member %d: %w", id, notFound(err))
	}
	return toDomainMember(row)
}

// GetMembers retrieves a system's members in registration order.
func (r *Repository) GetMembers(ctx context.Context, systemID int64) ([]model.Member, error) {
	var rows []dbMember
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM members WHERE system = ? ORDER BY id", systemID); err != nil {
		return nil, fmt.Errorf("getting members of system %d: %w", systemID, err)
	}
	members := make([]model.Member, 0, len(rows))
	for _, row := range rows {
		m, err := toDomainMember(row)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

// SetProxyTags replaces a member's proxy tags and keep-proxy flag.
func (r *Repository) SetProxyTags(ctx context.Context, memberID int64, tags []model.ProxyTag, keepProxy bool) error {
	encoded, err := encodeProxyTags(tags)
	if err != nil {
		return fmt.Errorf("setting proxy tags of member %d: %w", memberID, err)
	}
	result, err := r.db.ExecContext(ctx, "UPDATE members SET proxy_tags = ?, keep_proxy = ? WHERE id = ?", encoded, keepProxy, memberID)
	if err != nil {
		return fmt.Errorf("setting proxy tags of member %d: %w", memberID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for member %d: %w", memberID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("setting proxy tags of member %d: %w", memberID, model.ErrNotFound)
	}
	return nil
}

// IncrementMessageCount bumps a member's relayed-message counter.
func (r *Repository) IncrementMessageCount(ctx context.Context, memberID int64) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE members SET message_count = message_count + 1 WHERE id = ?", memberID); err != nil {
		return fmt.Errorf("incrementing message count of member %d: %w", memberID, err)
	}
	return nil
}

// dbMemberGuild represents a per-guild member override.
type dbMemberGuild struct {
	Member      int64  `db:"member"`
	Guild       int64  `db:"guild"`
	DisplayName string `db:"display_name"`
	AvatarURL   string `db:"avatar_url"`
}

// GetMemberGuild retrieves a member's override for a guild.
func (r *Repository) GetMemberGuild(ctx context.Context, memberID, guildID int64) (model.MemberGuild, error) {
	var row dbMemberGuild
	err := r.db.GetContext(ctx, &row, "SELECT * FROM member_guild WHERE member = ? AND guild = ?", memberID, guildID)
	if err != nil {
		return model.MemberGuild{}, fmt.Errorf("getting guild settings of member %d in guild %d: %w", memberID, guildID, notFound(err))
	}
	return model.MemberGuild{
		MemberID:    row.Member,
		GuildID:     row.Guild,
		DisplayName: row.DisplayName,
		AvatarURL:   row.AvatarURL,
	}, nil
}

// UpsertMemberGuild creates or replaces a member's override for a guild.
func (r *Repository) UpsertMemberGuild(ctx context.Context, mg model.MemberGuild) error {
	query := `INSERT INTO member_guild (member, guild, display_name, avatar_url)
	          VALUES (:member, :guild, :display_name, :avatar_url)
	          ON CONFLICT(member, guild) DO UPDATE SET
	              display_name = excluded.display_name,
	              avatar_url = excluded.avatar_url`
	row := dbMemberGuild{Member: mg.MemberID, Guild: mg.GuildID, DisplayName: mg.DisplayName, AvatarURL: mg.AvatarURL}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("saving guild settings of member %d: %w", mg.MemberID, err)
	}
	return nil
}
