// Package results tracks per-question vote tallies and per-user answers for
// a collection. It has no knowledge of poll semantics beyond collection,
// question, and answer strings.
package results

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/menuline/survey-platform/internal/kv"
)

// CollectionError indicates an operation referenced an unregistered
// collection.
type CollectionError struct {
	CollectionID string
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s is an unknown collection", e.CollectionID)
}

// UnknownQuestionError indicates a tally operation referenced a question
// that was never registered.
type UnknownQuestionError struct {
	Question string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("%s is an unknown question", e.Question)
}

// Manager is the answer tally. A collection must be registered before its
// questions, and a question before answers are tallied against it.
type Manager struct {
	store  kv.Store
	prefix string
}

// NewManager creates a tally rooted at the given key prefix.
func NewManager(store kv.Store, prefix string) *Manager {
	return &Manager{store: store, prefix: prefix}
}

func (m *Manager) key(parts ...string) string {
	return kv.Key(append([]string{m.prefix}, parts...)...)
}

func (m *Manager) collectionsKey() string {
	return m.key("collections")
}

func (m *Manager) questionsKey(collectionID string) string {
	return m.key("collections", collectionID, "questions")
}

func (m *Manager) answersKey(collectionID, question string) string {
	return m.key("collections", collectionID, "answers", question)
}

func (m *Manager) resultsKey(collectionID, question string) string {
	return m.key("collections", collectionID, "results", question)
}

func (m *Manager) usersKey(collectionID string) string {
	return m.key("collections", collectionID, "users")
}

func (m *Manager) userAnswersKey(collectionID, userID string) string {
	return m.key("collections", collectionID, "users", "results", userID)
}

// RegisterCollection adds a collection to the set of known collections.
// Idempotent.
func (m *Manager) RegisterCollection(ctx context.Context, collectionID string) error {
	return m.store.SAdd(ctx, m.collectionsKey(), collectionID)
}

// Collections returns all registered collection ids.
func (m *Manager) Collections(ctx context.Context) ([]string, error) {
	return m.store.SMembers(ctx, m.collectionsKey())
}

func (m *Manager) requireCollection(ctx context.Context, collectionID string) error {
	known, err := m.store.SIsMember(ctx, m.collectionsKey(), collectionID)
	if err != nil {
		return err
	}
	if !known {
		return &CollectionError{CollectionID: collectionID}
	}
	return nil
}

// Questions returns the registered question labels for a collection.
func (m *Manager) Questions(ctx context.Context, collectionID string) ([]string, error) {
	return m.store.SMembers(ctx, m.questionsKey(collectionID))
}

// Answers returns the registered possible answers for a question.
func (m *Manager) Answers(ctx context.Context, collectionID, question string) ([]string, error) {
	return m.store.SMembers(ctx, m.answersKey(collectionID, question))
}

// RegisterQuestion adds a question and its possible answers to a collection.
// Possible answers accumulate across calls: later registrations union with
// earlier ones. Returns the full answer set.
func (m *Manager) RegisterQuestion(ctx context.Context, collectionID, question string, possibleAnswers []string) ([]string, error) {
	if err := m.requireCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	if err := m.store.SAdd(ctx, m.questionsKey(collectionID), question); err != nil {
		return nil, err
	}
	if len(possibleAnswers) > 0 {
		if err := m.store.SAdd(ctx, m.answersKey(collectionID, question), possibleAnswers...); err != nil {
			return nil, err
		}
	}
	return m.Answers(ctx, collectionID, question)
}

// AddResult counts a user's answer to a question. At most one answer per
// (collection, question, user) is ever reflected in the tally: a revised
// answer decrements the previous answer's counter and increments the new
// one's; resubmitting the same answer changes nothing.
//
// The read-previous / increment / decrement / overwrite sequence is not
// executed transactionally. Two concurrent calls for the same user and
// question can race and lose an update; the engine submits at most one
// message per user at a time, which keeps the sequence serial in practice.
func (m *Manager) AddResult(ctx context.Context, collectionID, userID, question, answer string) error {
	if err := m.requireCollection(ctx, collectionID); err != nil {
		return err
	}
	registered, err := m.store.SIsMember(ctx, m.questionsKey(collectionID), question)
	if err != nil {
		return err
	}
	if !registered {
		return &UnknownQuestionError{Question: question}
	}

	if err := m.store.SAdd(ctx, m.usersKey(collectionID), userID); err != nil {
		return err
	}

	resultsKey := m.resultsKey(collectionID, question)
	userKey := m.userAnswersKey(collectionID, userID)
	previous, hadPrevious, err := m.store.HGet(ctx, userKey, question)
	if err != nil {
		return err
	}

	switch {
	case hadPrevious && previous != answer:
		if _, err := m.store.HIncrBy(ctx, resultsKey, answer, 1); err != nil {
			return err
		}
		if _, err := m.store.HIncrBy(ctx, resultsKey, previous, -1); err != nil {
			return err
		}
	case !hadPrevious:
		if _, err := m.store.HIncrBy(ctx, resultsKey, answer, 1); err != nil {
			return err
		}
	}

	return m.store.HSet(ctx, userKey, question, answer)
}

// ResultsForQuestion returns answer counts for one question. When possible
// answers were registered, every one appears with a zero default; for
// free-text questions the raw tallied counts are returned.
func (m *Manager) ResultsForQuestion(ctx context.Context, collectionID, question string) (map[string]int, error) {
	resultsKey := m.resultsKey(collectionID, question)
	answers, err := m.Answers(ctx, collectionID, question)
	if err != nil {
		return nil, err
	}

	if len(answers) > 0 {
		counts := make(map[string]int, len(answers))
		for _, answer := range answers {
			raw, ok, err := m.store.HGet(ctx, resultsKey, answer)
			if err != nil {
				return nil, err
			}
			if ok {
				counts[answer], _ = strconv.Atoi(raw)
			} else {
				counts[answer] = 0
			}
		}
		return counts, nil
	}

	raw, err := m.store.HGetAll(ctx, resultsKey)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(raw))
	for answer, value := range raw {
		counts[answer], _ = strconv.Atoi(value)
	}
	return counts, nil
}

// Results returns answer counts for every question in a collection.
func (m *Manager) Results(ctx context.Context, collectionID string) (map[string]map[string]int, error) {
	questions, err := m.Questions(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	results := make(map[string]map[string]int, len(questions))
	for _, question := range questions {
		counts, err := m.ResultsForQuestion(ctx, collectionID, question)
		if err != nil {
			return nil, err
		}
		results[question] = counts
	}
	return results, nil
}

// UserResult is one user's recorded answers, projected to a question set.
type UserResult struct {
	UserID  string
	Answers map[string]string
}

// User returns one user's last answers, optionally projected to a subset of
// questions. Unanswered questions map to the empty string.
func (m *Manager) User(ctx context.Context, collectionID, userID string, questions []string) (map[string]string, error) {
	if len(questions) == 0 {
		var err error
		questions, err = m.Questions(ctx, collectionID)
		if err != nil {
			return nil, err
		}
	}
	answersKey := m.userAnswersKey(collectionID, userID)
	answers := make(map[string]string, len(questions))
	for _, question := range questions {
		answer, _, err := m.store.HGet(ctx, answersKey, question)
		if err != nil {
			return nil, err
		}
		answers[question] = answer
	}
	return answers, nil
}

// Users returns every user that has answered in the collection with their
// recorded answers, sorted by user id.
func (m *Manager) Users(ctx context.Context, collectionID string, questions []string) ([]UserResult, error) {
	userIDs, err := m.store.SMembers(ctx, m.usersKey(collectionID))
	if err != nil {
		return nil, err
	}
	sort.Strings(userIDs)
	users := make([]UserResult, 0, len(userIDs))
	for _, userID := range userIDs {
		answers, err := m.User(ctx, collectionID, userID, questions)
		if err != nil {
			return nil, err
		}
		users = append(users, UserResult{UserID: userID, Answers: answers})
	}
	return users, nil
}
