package database

import (
	"context"
	"fmt"
	"time"

	"proxy-bot/model"

	"github.com/jmoiron/sqlx"
)

// dbSwitch represents a switch row; members live in switch_members.
type dbSwitch struct {
	ID        int64 `db:"id"`
	System    int64 `db:"system"`
	Timestamp int64 `db:"timestamp"` // unix microseconds
}

type dbSwitchMember struct {
	Switch   int64 `db:"switch"`
	Member   int64 `db:"member"`
	Position int   `db:"position"`
}

// InsertSwitch records a switch and its ordered members in one transaction.
// A second switch at the same timestamp for the same system yields model.ErrConflict.
func (r *Repository) InsertSwitch(ctx context.Context, systemID int64, at time.Time, members []int64) (model.Switch, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Switch{}, fmt.Errorf("beginning switch transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "INSERT INTO switches (system, timestamp) VALUES (?, ?)", systemID, at.UnixMicro())
	if isUniqueViolation(err) {
		return model.Switch{}, fmt.Errorf("inserting switch for system %d at %s: %w", systemID, at, model.ErrConflict)
	}
	if err != nil {
		return model.Switch{}, fmt.Errorf("inserting switch for system %d: %w", systemID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Switch{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for pos, member := range members {
		row := dbSwitchMember{Switch: id, Member: member, Position: pos}
		if _, err := tx.NamedExecContext(ctx, "INSERT INTO switch_members (switch, member, position) VALUES (:switch, :member, :position)", row); err != nil {
			return model.Switch{}, fmt.Errorf("inserting member %d into switch %d: %w", member, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Switch{}, fmt.Errorf("committing switch %d: %w", id, err)
	}

	return model.Switch{
		ID:        id,
		SystemID:  systemID,
		Timestamp: time.UnixMicro(at.UnixMicro()).UTC(),
		Members:   append([]int64{}, members...),
	}, nil
}

// GetLatestSwitch retrieves the switch with the greatest timestamp.
func (r *Repository) GetLatestSwitch(ctx context.Context, systemID int64) (model.Switch, error) {
	var row dbSwitch
	err := r.db.GetContext(ctx, &row, "SELECT * FROM switches WHERE system = ? ORDER BY timestamp DESC LIMIT 1", systemID)
	if err != nil {
		return model.Switch{}, fmt.Errorf("getting latest switch of system %d: %w", systemID, notFound(err))
	}
	switches, err := r.withMembers(ctx, []dbSwitch{row})
	if err != nil {
		return model.Switch{}, err
	}
	return switches[0], nil
}

// GetSwitches retrieves up to limit switches older than before, newest first.
func (r *Repository) GetSwitches(ctx context.Context, systemID int64, before time.Time, limit int) ([]model.Switch, error) {
	var rows []dbSwitch
	var err error
	if before.IsZero() {
		err = r.db.SelectContext(ctx, &rows,
			"SELECT * FROM switches WHERE system = ? ORDER BY timestamp DESC LIMIT ?", systemID, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			"SELECT * FROM switches WHERE system = ? AND timestamp < ? ORDER BY timestamp DESC LIMIT ?", systemID, before.UnixMicro(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("getting switches of system %d: %w", systemID, err)
	}
	return r.withMembers(ctx, rows)
}

func (r *Repository) withMembers(ctx context.Context, rows []dbSwitch) ([]model.Switch, error) {
	switches := make([]model.Switch, len(rows))
	if len(rows) == 0 {
		return switches, nil
	}

	ids := make([]int64, len(rows))
	index := make(map[int64]int, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		index[row.ID] = i
		switches[i] = model.Switch{
			ID:        row.ID,
			SystemID:  row.System,
			Timestamp: time.UnixMicro(row.Timestamp).UTC(),
			Members:   []int64{},
		}
	}

	query, args, err := sqlx.In("SELECT * FROM switch_members WHERE switch IN (?) ORDER BY switch, position", ids)
	if err != nil {
		return nil, fmt.Errorf("building switch member query: %w", err)
	}
	var members []dbSwitchMember
	if err := r.db.SelectContext(ctx, &members, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("getting switch members: %w", err)
	}
	for _, m := range members {
		i := index[m.Switch]
		switches[i].Members = append(switches[i].Members, m.Member)
	}
	return switches, nil
}
