package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxy-bot/model"

	"github.com/mattn/go-sqlite3"
)

const hidAttempts = 5

// dbSystem represents a system as stored in the database.
type dbSystem struct {
	ID                  int64  `db:"id"`
	HID                 string `db:"hid"`
	Name                string `db:"name"`
	Description         string `db:"description"`
	Tag                 string `db:"tag"`
	AvatarURL           string `db:"avatar_url"`
	Token               string `db:"token"`
	Created             int64  `db:"created"`
	UITimezone          string `db:"ui_tz"`
	DescriptionPrivacy  int    `db:"description_privacy"`
	MemberListPrivacy   int    `db:"member_list_privacy"`
	FrontPrivacy        int    `db:"front_privacy"`
	FrontHistoryPrivacy int    `db:"front_history_privacy"`
	GroupListPrivacy    int    `db:"group_list_privacy"`
	PingsEnabled        bool   `db:"pings_enabled"`
}

type privacyField struct {
	raw int
	dst *model.PrivacyLevel
}

func parsePrivacies(fields ...privacyField) error {
	for _, f := range fields {
		level, err := model.ParsePrivacyLevel(f.raw)
		if err != nil {
			return err
		}
		*f.dst = level
	}
	return nil
}

func orPublic(p model.PrivacyLevel) int {
	if p == 0 {
		return int(model.PrivacyPublic)
	}
	return int(p)
}

func toDomainSystem(row dbSystem) (model.System, error) {
	sys := model.System{
		ID:           row.ID,
		HID:          row.HID,
		Name:         row.Name,
		Description:  row.Description,
		Tag:          row.Tag,
		AvatarURL:    row.AvatarURL,
		Token:        row.Token,
		Created:      time.UnixMilli(row.Created).UTC(),
		UITimezone:   row.UITimezone,
		PingsEnabled: row.PingsEnabled,
	}
	err := parsePrivacies(
		privacyField{row.DescriptionPrivacy, &sys.DescriptionPrivacy},
		privacyField{row.MemberListPrivacy, &sys.MemberListPrivacy},
		privacyField{row.FrontPrivacy, &sys.FrontPrivacy},
		privacyField{row.FrontHistoryPrivacy, &sys.FrontHistoryPrivacy},
		privacyField{row.GroupListPrivacy, &sys.GroupListPrivacy},
	)
	if err != nil {
		return model.System{}, fmt.Errorf("system %d: %w", row.ID, err)
	}
	return sys, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateSystem inserts a new system with a freshly generated hid.
func (r *Repository) CreateSystem(ctx context.Context, sys model.System) (model.System, error) {
	if sys.Created.IsZero() {
		sys.Created = time.Now()
	}
	if sys.UITimezone == "" {
		sys.UITimezone = "UTC"
	}

	query := `INSERT INTO systems (hid, name, description, tag, avatar_url, token, created, ui_tz,
	              description_privacy, member_list_privacy, front_privacy, front_history_privacy, group_list_privacy, pings_enabled)
	          VALUES (:hid, :name, :description, :tag, :avatar_url, :token, :created, :ui_tz,
	              :description_privacy, :member_list_privacy, :front_privacy, :front_history_privacy, :group_list_privacy, :pings_enabled)`

	for attempt := 0; attempt < hidAttempts; attempt++ {
		hid, err := model.NewHID()
		if err != nil {
			return model.System{}, fmt.Errorf("generating system hid: %w", err)
		}
		row := dbSystem{
			HID:                 hid,
			Name:                sys.Name,
			Description:         sys.Description,
			Tag:                 sys.Tag,
			AvatarURL:           sys.AvatarURL,
			Token:               sys.Token,
			Created:             sys.Created.UnixMilli(),
			UITimezone:          sys.UITimezone,
			DescriptionPrivacy:  orPublic(sys.DescriptionPrivacy),
			MemberListPrivacy:   orPublic(sys.MemberListPrivacy),
			FrontPrivacy:        orPublic(sys.FrontPrivacy),
			FrontHistoryPrivacy: orPublic(sys.FrontHistoryPrivacy),
			GroupListPrivacy:    orPublic(sys.GroupListPrivacy),
			PingsEnabled:        sys.PingsEnabled,
		}
		result, err := r.db.NamedExecContext(ctx, query, row)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return model.System{}, fmt.Errorf("failed to insert system: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return model.System{}, fmt.Errorf("failed to get last insert ID: %w", err)
		}
		return r.GetSystem(ctx, id)
	}
	return model.System{}, fmt.Errorf("failed to generate a unique system hid after %d attempts", hidAttempts)
}

// LinkAccount attaches a platform user to a system, moving it if already linked.
func (r *Repository) LinkAccount(ctx context.Context, account model.Account) error {
	query := `INSERT INTO accounts (uid, system) VALUES (?, ?)
	          ON CONFLICT(uid) DO UPDATE SET system = excluded.system`
	if _, err := r.db.ExecContext(ctx, query, account.UserID, account.SystemID); err != nil {
		return fmt.Errorf("linking account %d to system %d: %w", account.UserID, account.SystemID, err)
	}
	return nil
}

// GetSystem retrieves a system by its internal id.
func (r *Repository) GetSystem(ctx context.Context, id int64) (model.System, error) {
	var row dbSystem
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM systems WHERE id = ?", id); err != nil {
		return model.System{}, fmt.Errorf("getting system %d: %w", id, notFound(err))
	}
	return toDomainSystem(row)
}

// GetSystemByAccount retrieves the system linked to a platform user.
func (r *Repository) GetSystemByAccount(ctx context.Context, userID int64) (model.System, error) {
	var row dbSystem
	query := `SELECT systems.* FROM systems JOIN accounts ON accounts.system = systems.id WHERE accounts.uid = ?`
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return model.System{}, fmt.Errorf("getting system for account %d: %w", userID, notFound(err))
	}
	return toDomainSystem(row)
}
