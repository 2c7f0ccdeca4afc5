// Package poll implements the question-sequencing state machine over one
// poll version and one participant session.
package poll

import (
	"context"
	"errors"

	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/internal/results"
)

// ErrNoPendingQuestion is returned by SubmitAnswer when no question has been
// presented. That is a caller contract violation, not a runtime condition:
// answers are only submitted while a session is mid-question.
var ErrNoPendingQuestion = errors.New("no question pending an answer")

// AnswerLogic is an extension point invoked after a valid answer is recorded,
// letting the application branch on answers (e.g. jumping the participant to
// a different poll).
type AnswerLogic interface {
	HandleAnswer(ctx context.Context, participant *model.Participant, answer string, question *model.Question) error
}

// AnswerLogicFunc adapts a function to the AnswerLogic interface.
type AnswerLogicFunc func(ctx context.Context, participant *model.Participant, answer string, question *model.Question) error

func (f AnswerLogicFunc) HandleAnswer(ctx context.Context, participant *model.Participant, answer string, question *model.Question) error {
	return f(ctx, participant, answer, question)
}

// Poll is one materialized poll version with its tally attached.
type Poll struct {
	PollID    string
	UID       string
	Config    *model.PollConfig
	questions []model.Question
	tally     *results.Manager
}

// New materializes a poll version: question indexes are assigned and the
// collection and every question are registered in the tally so answers can
// be counted the moment they arrive.
func New(ctx context.Context, pollID, uid string, cfg *model.PollConfig, tally *results.Manager) (*Poll, error) {
	p := &Poll{
		PollID:    pollID,
		UID:       uid,
		Config:    cfg,
		questions: make([]model.Question, len(cfg.Questions)),
		tally:     tally,
	}
	copy(p.questions, cfg.Questions)
	for i := range p.questions {
		p.questions[i].Index = i
	}

	if err := tally.RegisterCollection(ctx, pollID); err != nil {
		return nil, err
	}
	for i := range p.questions {
		q := &p.questions[i]
		if _, err := tally.RegisterQuestion(ctx, pollID, q.StorageLabel(), q.ValidResponses); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// BatchSize is the per-session question quota; zero means unlimited.
func (p *Poll) BatchSize() int {
	return p.Config.BatchSize
}

// Repeatable reports whether a completed participant starts over on the next
// contact.
func (p *Poll) Repeatable() bool {
	return p.Config.Repeatable
}

// Question returns the question at index, nil when out of range.
func (p *Poll) Question(index int) *model.Question {
	if index < 0 || index >= len(p.questions) {
		return nil
	}
	return &p.questions[index]
}

// GetLastQuestion returns the question last presented to the participant,
// nil for a fresh session.
func (p *Poll) GetLastQuestion(participant *model.Participant) *model.Question {
	index, ok := participant.LastQuestionIndex()
	if !ok {
		return nil
	}
	return p.Question(index)
}

// SetLastQuestion records the presented question on the participant.
func (p *Poll) SetLastQuestion(participant *model.Participant, question *model.Question) {
	participant.SetLastQuestionIndex(question.Index)
}

// GetNextQuestion scans forward from the participant's last answered
// question and returns the first one whose checks pass against the
// participant's labels, or nil when none remain. The scan never revisits
// earlier indexes: a question once passed cannot later become reachable.
func (p *Poll) GetNextQuestion(participant *model.Participant) *model.Question {
	start := 0
	if last := p.GetLastQuestion(participant); last != nil {
		start = last.Index + 1
	}
	return p.nextEligible(participant, start)
}

func (p *Poll) nextEligible(participant *model.Participant, start int) *model.Question {
	for i := start; i < len(p.questions); i++ {
		q := &p.questions[i]
		if model.ChecksPass(q.Checks, participant.Labels, p.Config.CaseSensitive) {
			return q
		}
	}
	return nil
}

// SubmitAnswer validates the answer to the last presented question. A valid
// answer is recorded in the tally and the participant's labels, custom logic
// runs, and the interaction counter advances. An invalid answer changes no
// state and returns the question's prompt so the caller re-asks it.
func (p *Poll) SubmitAnswer(ctx context.Context, participant *model.Participant, answer string, logic AnswerLogic) (string, error) {
	question := p.GetLastQuestion(participant)
	if question == nil {
		return "", ErrNoPendingQuestion
	}
	if !question.Accepts(answer, p.Config.CaseSensitive) {
		return question.Copy, nil
	}

	if err := p.tally.AddResult(ctx, p.PollID, participant.UserID, question.StorageLabel(), answer); err != nil {
		return "", err
	}
	participant.SetLabel(question.StorageLabel(), answer)
	participant.HasUnansweredQuestion = false
	if logic != nil {
		if err := logic.HandleAnswer(ctx, participant, answer, question); err != nil {
			return "", err
		}
	}
	participant.Interactions++
	return "", nil
}

// HasMoreQuestionsFor reports whether another question is both eligible and
// allowed by the participant's batch quota.
func (p *Poll) HasMoreQuestionsFor(participant *model.Participant) bool {
	return p.GetNextQuestion(participant) != nil && participant.HasRemainingInteractions()
}

// CompletedResponse picks the closing message: the first configured
// conditional response whose checks pass wins, falling back to defaultText.
func (p *Poll) CompletedResponse(participant *model.Participant, defaultText string) string {
	for _, resp := range p.Config.CompletedResponses {
		if model.ChecksPass(resp.Checks, participant.Labels, p.Config.CaseSensitive) {
			return resp.Copy
		}
	}
	return defaultText
}
