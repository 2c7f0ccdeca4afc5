package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuline/survey-platform/internal/kv"
	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/pkg/logger"
)

func newTestRegistry(t *testing.T) (*Manager, context.Context) {
	t.Helper()
	return NewManager(kv.NewMemory(), "pm", logger.NewNop()), context.Background()
}

func simpleConfig(prompt string) *model.PollConfig {
	return &model.PollConfig{
		Questions: []model.Question{
			{Copy: prompt, Label: "colour", ValidResponses: []string{"red", "blue"}},
		},
	}
}

func TestVersionStorage(t *testing.T) {
	m, ctx := newTestRegistry(t)

	t.Run("unknown poll", func(t *testing.T) {
		cfg, err := m.GetConfig(ctx, "nope", "")
		require.NoError(t, err)
		assert.Nil(t, cfg)

		p, err := m.Get(ctx, "nope", "")
		require.NoError(t, err)
		assert.Nil(t, p)

		exists, err := m.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	cfg1 := simpleConfig("Red or blue?")
	uid1, err := m.Set(ctx, "poll-1", cfg1)
	require.NoError(t, err)
	require.NotEmpty(t, uid1)

	t.Run("registering identical content is a no-op version", func(t *testing.T) {
		again, err := m.Set(ctx, "poll-1", simpleConfig("Red or blue?"))
		require.NoError(t, err)
		assert.Equal(t, uid1, again)
	})

	cfg2 := simpleConfig("Blue or red?")
	uid2, err := m.Set(ctx, "poll-1", cfg2)
	require.NoError(t, err)
	require.NotEqual(t, uid1, uid2)

	t.Run("empty uid resolves to latest", func(t *testing.T) {
		got, err := m.GetConfig(ctx, "poll-1", "")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Blue or red?", got.Questions[0].Copy)
	})

	t.Run("pinned uid resolves that version", func(t *testing.T) {
		got, err := m.GetConfig(ctx, "poll-1", uid1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Red or blue?", got.Questions[0].Copy)
	})

	t.Run("unknown uid falls back to latest", func(t *testing.T) {
		got, err := m.GetConfig(ctx, "poll-1", "deadbeef")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Blue or red?", got.Questions[0].Copy)
	})

	t.Run("exists after registration", func(t *testing.T) {
		exists, err := m.Exists(ctx, "poll-1")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestRegisterMaterializes(t *testing.T) {
	m, ctx := newTestRegistry(t)

	p, err := m.Register(ctx, "poll-1", simpleConfig("Red or blue?"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "poll-1", p.PollID)
	assert.NotEmpty(t, p.UID)

	questions, err := m.Tally().Questions(ctx, "poll-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"colour"}, questions)
}

func TestParticipantPersistence(t *testing.T) {
	m, ctx := newTestRegistry(t)

	participant, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, participant.PollID(), "unknown user gets a fresh session")

	participant.SetPollID("poll-1")
	participant.SetPollUID("abc")
	participant.SetLabel("colour", "red")
	require.NoError(t, m.SaveParticipant(ctx, "poll-1", participant))

	loaded, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "poll-1", loaded.PollID())
	assert.Equal(t, "abc", loaded.PollUID())
	value, ok := loaded.Label("colour")
	require.True(t, ok)
	assert.Equal(t, "red", value)
	assert.NotZero(t, loaded.UpdatedAt)

	t.Run("sessions are scoped per poll", func(t *testing.T) {
		other, err := m.GetParticipant(ctx, "poll-2", "user-1")
		require.NoError(t, err)
		assert.Empty(t, other.PollID())
	})
}

func TestCloneParticipant(t *testing.T) {
	m, ctx := newTestRegistry(t)

	original, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	original.SetPollID("poll-1")
	original.SetLabel("colour", "red")
	require.NoError(t, m.SaveParticipant(ctx, "poll-1", original))

	clone, err := m.CloneParticipant(ctx, original, "poll-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", clone.UserID)
	assert.Equal(t, "poll-1", clone.PollID())
	value, _ := clone.Label("colour")
	assert.Equal(t, "red", value)
}

func TestArchive(t *testing.T) {
	m, ctx := newTestRegistry(t)

	participant, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	participant.SetPollID("poll-1")
	participant.SetLabel("colour", "red")
	participant.UpdatedAt = 100
	require.NoError(t, m.Archive(ctx, "poll-1", participant))

	t.Run("live session is cleared", func(t *testing.T) {
		fresh, err := m.GetParticipant(ctx, "poll-1", "user-1")
		require.NoError(t, err)
		assert.Empty(t, fresh.PollID())
	})

	t.Run("user is listed inactive", func(t *testing.T) {
		inactive, err := m.InactiveParticipantUserIDs(ctx, "poll-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"user-1"}, inactive)
	})

	// A second run gets archived alongside the first, not over it.
	participant.SetLabel("colour", "blue")
	participant.UpdatedAt = 200
	require.NoError(t, m.Archive(ctx, "poll-1", participant))

	t.Run("history is append-only, most recent first", func(t *testing.T) {
		archived, err := m.GetArchive(ctx, "poll-1", "user-1")
		require.NoError(t, err)
		require.Len(t, archived, 2)

		assert.Equal(t, float64(200), archived[0].UpdatedAt)
		value, _ := archived[0].Label("colour")
		assert.Equal(t, "blue", value)

		assert.Equal(t, float64(100), archived[1].UpdatedAt)
		value, _ = archived[1].Label("colour")
		assert.Equal(t, "red", value)
	})
}

func TestActiveParticipants(t *testing.T) {
	m, ctx := newTestRegistry(t)

	save := func(pollID, userID string) {
		p, err := m.GetParticipant(ctx, pollID, userID)
		require.NoError(t, err)
		p.SetPollID(pollID)
		require.NoError(t, m.SaveParticipant(ctx, pollID, p))
	}
	save("poll-1", "user-1")
	save("poll-1", "user-2")
	save("poll-2", "user-3")

	active, err := m.ActiveParticipants(ctx, "poll-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	ids := []string{active[0].UserID, active[1].UserID}
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, ids)

	t.Run("archived sessions drop out", func(t *testing.T) {
		p, err := m.GetParticipant(ctx, "poll-1", "user-1")
		require.NoError(t, err)
		require.NoError(t, m.Archive(ctx, "poll-1", p))

		active, err := m.ActiveParticipants(ctx, "poll-1")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "user-2", active[0].UserID)
	})
}
