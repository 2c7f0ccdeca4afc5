package registry

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
)

// UserExport joins a user's tallied answers with their session timestamp.
type UserExport struct {
	UserID    string            `json:"user_id"`
	UpdatedAt float64           `json:"updated_at"`
	Answers   map[string]string `json:"answers"`
}

// ExportUserData returns per-user answers for a poll with the timestamp of
// the user's most recent session activity, live session first, latest
// archive entry otherwise. Pure read-side aggregation.
func (m *Manager) ExportUserData(ctx context.Context, pollID string) ([]UserExport, error) {
	users, err := m.tally.Users(ctx, pollID, nil)
	if err != nil {
		return nil, err
	}

	exports := make([]UserExport, 0, len(users))
	for _, user := range users {
		export := UserExport{UserID: user.UserID, Answers: user.Answers}

		live, err := m.sessions.Exists(ctx, sessionKey(pollID, user.UserID))
		if err != nil {
			return nil, err
		}
		if live {
			participant, err := m.GetParticipant(ctx, pollID, user.UserID)
			if err != nil {
				return nil, err
			}
			export.UpdatedAt = participant.UpdatedAt
		} else {
			archived, err := m.GetArchive(ctx, pollID, user.UserID)
			if err != nil {
				return nil, err
			}
			if len(archived) > 0 {
				export.UpdatedAt = archived[0].UpdatedAt
			}
		}
		exports = append(exports, export)
	}
	return exports, nil
}

// ExportUserDataAsCSV renders ExportUserData with a user_id and updated_at
// column followed by one column per question.
func (m *Manager) ExportUserDataAsCSV(ctx context.Context, pollID string) ([]byte, error) {
	exports, err := m.ExportUserData(ctx, pollID)
	if err != nil {
		return nil, err
	}
	questions, err := m.tally.Questions(ctx, pollID)
	if err != nil {
		return nil, err
	}
	sort.Strings(questions)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"user_id", "updated_at"}, questions...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, export := range exports {
		row := []string{
			export.UserID,
			strconv.FormatFloat(export.UpdatedAt, 'f', -1, 64),
		}
		for _, question := range questions {
			row = append(row, export.Answers[question])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
