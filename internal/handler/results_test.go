package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsEndpoints(t *testing.T) {
	r, reg := newTestRouter(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/polls/p1", strings.NewReader(testConfig)))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, reg.Tally().AddResult(ctx, "p1", "u1", "colour", "red"))
	require.NoError(t, reg.Tally().AddResult(ctx, "p1", "u2", "colour", "blue"))

	t.Run("results", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/results", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var results map[string]map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.Equal(t, map[string]int{"red": 1, "blue": 1}, results["colour"])
	})

	t.Run("single question", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/results/question?q=colour", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var counts map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
		assert.Equal(t, map[string]int{"red": 1, "blue": 1}, counts)
	})

	t.Run("question parameter required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/results/question", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("results csv", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/results.csv", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "p1-results.csv")
		assert.Contains(t, rec.Body.String(), "colour,1,1")
	})

	t.Run("users csv", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/users.csv", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.True(t, strings.HasPrefix(body, "user_id,colour\n"), body)
		assert.Contains(t, body, "u1,red")
		assert.Contains(t, body, "u2,blue")
	})
}

func TestParticipantEndpoints(t *testing.T) {
	r, reg := newTestRouter(t)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/polls/p1", strings.NewReader(testConfig)))
	require.Equal(t, http.StatusCreated, rec.Code)

	active, err := reg.GetParticipant(ctx, "p1", "u1")
	require.NoError(t, err)
	active.SetPollID("p1")
	active.SetLabel("colour", "red")
	require.NoError(t, reg.SaveParticipant(ctx, "p1", active))

	done, err := reg.GetParticipant(ctx, "p1", "u2")
	require.NoError(t, err)
	done.SetPollID("p1")
	require.NoError(t, reg.Archive(ctx, "p1", done))

	t.Run("active listing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/participants", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Active []struct {
				UserID string            `json:"user_id"`
				PollID string            `json:"poll_id"`
				Labels map[string]string `json:"labels"`
			} `json:"active"`
			ActiveCount   int `json:"active_count"`
			InactiveCount int `json:"inactive_count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.ActiveCount)
		assert.Equal(t, 1, body.InactiveCount)
		require.Len(t, body.Active, 1)
		assert.Equal(t, "u1", body.Active[0].UserID)
		assert.Equal(t, "red", body.Active[0].Labels["colour"])
	})

	t.Run("archive history", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/participants/u2/archive", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var views []struct {
			UserID string `json:"user_id"`
			PollID string `json:"poll_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "u2", views[0].UserID)
		assert.Equal(t, "p1", views[0].PollID)
	})

	t.Run("empty archive", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls/p1/participants/u9/archive", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}
