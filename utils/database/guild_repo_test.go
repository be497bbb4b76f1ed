package database

import (
	"context"
	"testing"

	"proxy-bot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should default system guild settings", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, _ := seedSystem(t, repo)
		got, err := repo.GetSystemGuild(ctx, sys.ID, 55)
		require.NoError(t, err)
		assert.Equal(t, model.DefaultSystemGuild(sys.ID, 55), got)
	})

	t.Run("should store autoproxy settings", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, members := seedSystem(t, repo, model.Member{Name: "Alice"})
		want := model.SystemGuild{
			SystemID:        sys.ID,
			GuildID:         55,
			ProxyEnabled:    true,
			AutoproxyMode:   model.AutoproxyMember,
			AutoproxyMember: members[0].ID,
		}
		require.NoError(t, repo.UpsertSystemGuild(ctx, want))

		got, err := repo.GetSystemGuild(ctx, sys.ID, 55)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		want.AutoproxyMode = model.AutoproxyMode(42)
		assert.Error(t, repo.UpsertSystemGuild(ctx, want))
	})

	t.Run("should store server config", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetServer(ctx, 55)
		require.NoError(t, err)
		assert.Equal(t, model.Server{ID: 55}, got)

		want := model.Server{ID: 55, LogChannel: 9, LogBlacklist: []int64{1, 2}, Blacklist: []int64{3}, LogCleanupEnabled: true}
		require.NoError(t, repo.UpsertServer(ctx, want))

		got, err = repo.GetServer(ctx, 55)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
