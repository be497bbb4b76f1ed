package database

import (
	"context"
	"testing"
	"time"

	"proxy-bot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchRepo(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should return the latest switch by timestamp", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, m := seedSystem(t, repo, model.Member{Name: "A"}, model.Member{Name: "B"})
		_, err := repo.GetLatestSwitch(ctx, sys.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = repo.InsertSwitch(ctx, sys.ID, t0.Add(time.Hour), []int64{m[1].ID, m[0].ID})
		require.NoError(t, err)
		_, err = repo.InsertSwitch(ctx, sys.ID, t0, []int64{m[0].ID})
		require.NoError(t, err)

		latest, err := repo.GetLatestSwitch(ctx, sys.ID)
		require.NoError(t, err)
		assert.True(t, latest.Timestamp.Equal(t0.Add(time.Hour)))
		assert.Equal(t, []int64{m[1].ID, m[0].ID}, latest.Members, "member order is preserved")
	})

	t.Run("should store switch-outs", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, _ := seedSystem(t, repo)
		sw, err := repo.InsertSwitch(ctx, sys.ID, t0, nil)
		require.NoError(t, err)
		assert.Empty(t, sw.Members)

		latest, err := repo.GetLatestSwitch(ctx, sys.ID)
		require.NoError(t, err)
		assert.Equal(t, sw.ID, latest.ID)
		assert.Empty(t, latest.Members)
	})

	t.Run("should reject a second switch at the same timestamp", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, _ := seedSystem(t, repo)
		_, err := repo.InsertSwitch(ctx, sys.ID, t0, nil)
		require.NoError(t, err)
		_, err = repo.InsertSwitch(ctx, sys.ID, t0, nil)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("should page history newest first", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sys, m := seedSystem(t, repo, model.Member{Name: "A"})
		for i := 0; i < 5; i++ {
			_, err := repo.InsertSwitch(ctx, sys.ID, t0.Add(time.Duration(i)*time.Minute), []int64{m[0].ID})
			require.NoError(t, err)
		}

		page, err := repo.GetSwitches(ctx, sys.ID, time.Time{}, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.True(t, page[0].Timestamp.Equal(t0.Add(4*time.Minute)))
		assert.True(t, page[1].Timestamp.Equal(t0.Add(3*time.Minute)))

		page, err = repo.GetSwitches(ctx, sys.ID, page[1].Timestamp, 10)
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.True(t, page[2].Timestamp.Equal(t0))
		assert.Equal(t, []int64{m[0].ID}, page[2].Members)
	})
}

func TestWebhookRepo(t *testing.T) {
	ctx := context.Background()
	repo, teardown := setupTestDB(t)
	defer teardown()

	_, err := repo.GetWebhook(ctx, 10)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.InsertWebhook(ctx, model.Webhook{ChannelID: 10, ID: 1, Token: "old"}))
	require.NoError(t, repo.InsertWebhook(ctx, model.Webhook{ChannelID: 10, ID: 2, Token: "new"}))

	got, err := repo.GetWebhook(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Webhook{ChannelID: 10, ID: 2, Token: "new"}, got)

	require.NoError(t, repo.DeleteWebhook(ctx, 10))
	_, err = repo.GetWebhook(ctx, 10)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
