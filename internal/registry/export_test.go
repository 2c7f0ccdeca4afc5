package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportUserData(t *testing.T) {
	m, ctx := newTestRegistry(t)

	_, err := m.Register(ctx, "poll-1", simpleConfig("Red or blue?"))
	require.NoError(t, err)

	require.NoError(t, m.Tally().AddResult(ctx, "poll-1", "user-1", "colour", "red"))
	require.NoError(t, m.Tally().AddResult(ctx, "poll-1", "user-2", "colour", "blue"))

	// user-1 has a live session, user-2 only an archived one.
	live, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	live.SetPollID("poll-1")
	require.NoError(t, m.SaveParticipant(ctx, "poll-1", live))

	archived, err := m.GetParticipant(ctx, "poll-1", "user-2")
	require.NoError(t, err)
	archived.SetPollID("poll-1")
	archived.UpdatedAt = 500
	require.NoError(t, m.Archive(ctx, "poll-1", archived))

	exports, err := m.ExportUserData(ctx, "poll-1")
	require.NoError(t, err)
	require.Len(t, exports, 2)

	assert.Equal(t, "user-1", exports[0].UserID)
	assert.Equal(t, map[string]string{"colour": "red"}, exports[0].Answers)
	assert.NotZero(t, exports[0].UpdatedAt, "live session timestamp")

	assert.Equal(t, "user-2", exports[1].UserID)
	assert.Equal(t, map[string]string{"colour": "blue"}, exports[1].Answers)
	assert.Equal(t, float64(500), exports[1].UpdatedAt, "archive timestamp")
}

func TestExportUserDataAsCSV(t *testing.T) {
	m, ctx := newTestRegistry(t)

	_, err := m.Register(ctx, "poll-1", simpleConfig("Red or blue?"))
	require.NoError(t, err)
	require.NoError(t, m.Tally().AddResult(ctx, "poll-1", "user-1", "colour", "red"))

	p, err := m.GetParticipant(ctx, "poll-1", "user-1")
	require.NoError(t, err)
	p.SetPollID("poll-1")
	p.UpdatedAt = 1000
	require.NoError(t, m.Archive(ctx, "poll-1", p))

	data, err := m.ExportUserDataAsCSV(ctx, "poll-1")
	require.NoError(t, err)

	want := "user_id,updated_at,colour\n" +
		"user-1,1000,red\n"
	assert.Equal(t, want, string(data))
}
