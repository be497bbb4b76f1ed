package database

import (
	"context"
	"fmt"
	"time"

	"proxy-bot/model"
)

type dbGroup struct {
	ID                 int64  `db:"id"`
	HID                string `db:"hid"`
	System             int64  `db:"system"`
	Name               string `db:"name"`
	DisplayName        string `db:"display_name"`
	Description        string `db:"description"`
	Icon               string `db:"icon"`
	DescriptionPrivacy int    `db:"description_privacy"`
	IconPrivacy        int    `db:"icon_privacy"`
	ListPrivacy        int    `db:"list_privacy"`
	Visibility         int    `db:"visibility"`
	Created            int64  `db:"created"`
}

// CreateGroup inserts a group and its member list.
func (r *Repository) CreateGroup(ctx context.Context, g model.Group) (model.Group, error) {
	if g.Created.IsZero() {
		g.Created = time.Now()
	}
	hid, err := model.NewHID()
	if err != nil {
		return model.Group{}, fmt.Errorf("generating group hid: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Group{}, fmt.Errorf("beginning group transaction: %w", err)
	}
	defer tx.Rollback()

	row := dbGroup{
		HID:                hid,
		System:             g.SystemID,
		Name:               g.Name,
		DisplayName:        g.DisplayName,
		Description:        g.Description,
		Icon:               g.Icon,
		DescriptionPrivacy: orPublic(g.DescriptionPrivacy),
		IconPrivacy:        orPublic(g.IconPrivacy),
		ListPrivacy:        orPublic(g.ListPrivacy),
		Visibility:         orPublic(g.Visibility),
		Created:            g.Created.UnixMilli(),
	}
	query := `INSERT INTO groups (hid, system, name, display_name, description, icon,
	              description_privacy, icon_privacy, list_privacy, visibility, created)
	          VALUES (:hid, :system, :name, :display_name, :description, :icon,
	              :description_privacy, :icon_privacy, :list_privacy, :visibility, :created)`
	result, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	for _, member := range g.Members {
		if _, err := tx.ExecContext(ctx, "INSERT INTO group_members (group_id, member_id) VALUES (?, ?)", id, member); err != nil {
			return model.Group{}, fmt.Errorf("adding member %d to group %d: %w", member, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Group{}, fmt.Errorf("committing group %d: %w", id, err)
	}

	g.ID = id
	g.HID = hid
	g.Created = time.UnixMilli(row.Created).UTC()
	return g, nil
}

// GetGroups retrieves a system's groups with their members.
func (r *Repository) GetGroups(ctx context.Context, systemID int64) ([]model.Group, error) {
	var rows []dbGroup
	if err := r.db.SelectContext(ctx, &rows, "SELECT * FROM groups WHERE system = ? ORDER BY id", systemID); err != nil {
		return nil, fmt.Errorf("getting groups of system %d: %w", systemID, err)
	}

	groups := make([]model.Group, 0, len(rows))
	for _, row := range rows {
		g := model.Group{
			ID:          row.ID,
			HID:         row.HID,
			SystemID:    row.System,
			Name:        row.Name,
			DisplayName: row.DisplayName,
			Description: row.Description,
			Icon:        row.Icon,
			Created:     time.UnixMilli(row.Created).UTC(),
		}
		err := parsePrivacies(
			privacyField{row.DescriptionPrivacy, &g.DescriptionPrivacy},
			privacyField{row.IconPrivacy, &g.IconPrivacy},
			privacyField{row.ListPrivacy, &g.ListPrivacy},
			privacyField{row.Visibility, &g.Visibility},
		)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", row.ID, err)
		}
		if err := r.db.SelectContext(ctx, &g.Members, "SELECT member_id FROM group_members WHERE group_id = ? ORDER BY member_id", row.ID); err != nil {
			return nil, fmt.Errorf("getting members of group %d: %w", row.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
