package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
)

// UsersAsCSV renders every user's recorded answers, one row per user, with a
// user_id column followed by one column per question.
func (m *Manager) UsersAsCSV(ctx context.Context, collectionID string) ([]byte, error) {
	questions, err := m.Questions(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	sort.Strings(questions)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"user_id"}, questions...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	users, err := m.Users(ctx, collectionID, questions)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		row := make([]string, 0, len(header))
		row = append(row, user.UserID)
		for _, question := range questions {
			row = append(row, user.Answers[question])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ResultsAsCSV renders per-question answer counts as alternating header and
// count rows, matching the layout the dashboard export tooling consumes.
func (m *Manager) ResultsAsCSV(ctx context.Context, collectionID string) ([]byte, error) {
	results, err := m.Results(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	questions := make([]string, 0, len(results))
	for question := range results {
		questions = append(questions, question)
	}
	sort.Strings(questions)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, question := range questions {
		counts := results[question]
		answers := make([]string, 0, len(counts))
		for answer := range counts {
			answers = append(answers, answer)
		}
		sort.Strings(answers)

		headerRow := append([]string{""}, answers...)
		countRow := []string{question}
		for _, answer := range answers {
			countRow = append(countRow, strconv.Itoa(counts[answer]))
		}
		if err := w.Write(headerRow); err != nil {
			return nil, err
		}
		if err := w.Write(countRow); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
