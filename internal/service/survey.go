// Package service provides business logic for the survey platform.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/internal/poll"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/pkg/logger"
	"github.com/menuline/survey-platform/pkg/metrics"
)

// Default response copy, overridable per poll configuration.
const (
	DefaultBatchCompletedResponse = "You have completed the first batch of " +
		"questions, dial in again to complete the full survey."
	DefaultSurveyCompletedResponse = "You have completed the survey"
	DefaultUnavailableResponse     = "No survey is currently running, please try again later."
)

// JumpLabel is the participant label answer logic can set to move the
// participant to a specific poll before their next message is handled.
// Honored only in multi-poll mode and cleared once applied.
const JumpLabel = "JUMP_TO_POLL"

// Options configures a SurveyService.
type Options struct {
	// MultiPoll chains numbered sub-polls (<scope>_0, <scope>_1, ...) under
	// one session scope instead of serving a single poll per scope.
	MultiPoll bool

	// AnswerLogic runs after each valid answer; nil for none.
	AnswerLogic poll.AnswerLogic
}

// SurveyService drives one inbound text message through the question
// sequencer and decides the reply. It is invoked synchronously per message;
// the expected usage is one in-flight message per user at a time.
type SurveyService struct {
	registry *registry.Manager
	logger   *logger.Logger
	opts     Options
}

// NewSurveyService creates a new survey service.
func NewSurveyService(reg *registry.Manager, log *logger.Logger, opts Options) *SurveyService {
	return &SurveyService{
		registry: reg,
		logger:   log,
		opts:     opts,
	}
}

// PollPrefix builds the poll-id prefix for a session scope in multi-poll
// mode.
func PollPrefix(scopeID string) string {
	return scopeID + "_"
}

// FirstPollID returns the first poll id in a numbered sequence.
func FirstPollID(prefix string) string {
	return prefix + "0"
}

// NextPollID returns the id following current in a numbered sequence, or the
// first id when current is empty.
func NextPollID(prefix, current string) string {
	if current == "" {
		return FirstPollID(prefix)
	}
	num, err := strconv.Atoi(strings.TrimPrefix(current, prefix))
	if err != nil {
		return FirstPollID(prefix)
	}
	return fmt.Sprintf("%s%d", prefix, num+1)
}

// HandleMessage consumes one inbound message and returns the reply: the next
// question, a re-ask after an invalid answer, or a batch/survey completion
// message.
func (s *SurveyService) HandleMessage(ctx context.Context, msg model.InboundMessage) (model.Reply, error) {
	metrics.MessagesTotal.WithLabelValues(msg.PollID).Inc()

	scopeID := msg.PollID
	participant, err := s.registry.GetParticipant(ctx, scopeID, msg.UserID)
	if err != nil {
		return model.Reply{}, err
	}

	if s.opts.MultiPoll {
		if err := s.applyJumpLabel(ctx, scopeID, participant); err != nil {
			return model.Reply{}, err
		}
	}

	pollID := participant.PollID()
	if pollID == "" {
		if s.opts.MultiPoll {
			pollID = FirstPollID(PollPrefix(scopeID))
		} else {
			pollID = scopeID
		}
	}

	p, err := s.registry.Get(ctx, pollID, participant.PollUID())
	if err != nil {
		return model.Reply{}, err
	}
	if p == nil {
		s.logger.Warn("message for unknown poll",
			zap.String("poll_id", pollID),
			zap.String("user_id", msg.UserID),
		)
		return model.Reply{Content: DefaultUnavailableResponse}, nil
	}

	// Pin the version so this participant keeps seeing it even if the poll
	// is edited underneath them.
	participant.SetPollID(p.PollID)
	participant.SetPollUID(p.UID)
	participant.QuestionsPerSession = p.BatchSize()

	if participant.HasUnansweredQuestion {
		return s.onAnswer(ctx, scopeID, participant, p, msg.Content)
	}
	return s.initSession(ctx, scopeID, participant, p)
}

// applyJumpLabel honors a pending JUMP_TO_POLL label set by answer logic,
// unless the participant is still in the registration (first) poll.
func (s *SurveyService) applyJumpLabel(ctx context.Context, scopeID string, participant *model.Participant) error {
	target, ok := participant.Label(JumpLabel)
	if !ok || target == "" {
		return nil
	}
	if participant.PollID() == FirstPollID(PollPrefix(scopeID)) {
		return nil
	}
	if _, err := s.TryGoToSpecificPoll(ctx, scopeID, participant, target); err != nil {
		return err
	}
	participant.DeleteLabel(JumpLabel)
	return nil
}

// initSession starts or resumes a session that has no pending question.
func (s *SurveyService) initSession(ctx context.Context, scopeID string, participant *model.Participant, p *poll.Poll) (model.Reply, error) {
	if p.HasMoreQuestionsFor(participant) {
		next := p.GetNextQuestion(participant)
		return s.askQuestion(ctx, scopeID, participant, p, next)
	}
	return s.endSession(ctx, scopeID, participant, p)
}

// onAnswer handles a message while a question is pending.
func (s *SurveyService) onAnswer(ctx context.Context, scopeID string, participant *model.Participant, p *poll.Poll, content string) (model.Reply, error) {
	retry, err := p.SubmitAnswer(ctx, participant, content, s.opts.AnswerLogic)
	if err != nil {
		return model.Reply{}, err
	}
	if retry != "" {
		// Invalid answer: re-ask the same question, no state was changed.
		metrics.AnswersTotal.WithLabelValues(p.PollID, "invalid").Inc()
		return model.Reply{Content: retry, ContinueSession: true}, nil
	}
	metrics.AnswersTotal.WithLabelValues(p.PollID, "valid").Inc()

	// Answer logic may have redirected the participant to another poll.
	if s.opts.MultiPoll && participant.PollID() != p.PollID && participant.PollID() != "" {
		redirected, err := s.registry.Get(ctx, participant.PollID(), participant.PollUID())
		if err != nil {
			return model.Reply{}, err
		}
		if redirected != nil {
			p = redirected
			participant.SetPollUID(p.UID)
			participant.QuestionsPerSession = p.BatchSize()
		}
	}

	if p.HasMoreQuestionsFor(participant) {
		next := p.GetNextQuestion(participant)
		return s.askQuestion(ctx, scopeID, participant, p, next)
	}
	return s.endSession(ctx, scopeID, participant, p)
}

// askQuestion presents a question and persists the awaiting-answer state.
func (s *SurveyService) askQuestion(ctx context.Context, scopeID string, participant *model.Participant, p *poll.Poll, question *model.Question) (model.Reply, error) {
	participant.HasUnansweredQuestion = true
	p.SetLastQuestion(participant, question)
	if err := s.registry.SaveParticipant(ctx, scopeID, participant); err != nil {
		return model.Reply{}, err
	}
	metrics.QuestionsAsked.WithLabelValues(p.PollID).Inc()
	return model.Reply{Content: question.Copy, ContinueSession: true}, nil
}

// endSession closes the current contact: a batch pause when eligible
// questions remain, the survey completion path otherwise.
func (s *SurveyService) endSession(ctx context.Context, scopeID string, participant *model.Participant, p *poll.Poll) (model.Reply, error) {
	participant.BatchCompleted()

	if next := p.GetNextQuestion(participant); next != nil {
		if err := s.registry.SaveParticipant(ctx, scopeID, participant); err != nil {
			return model.Reply{}, err
		}
		metrics.BatchesCompleted.WithLabelValues(p.PollID).Inc()
		response := p.Config.BatchCompletedResponse
		if response == "" {
			response = DefaultBatchCompletedResponse
		}
		return model.Reply{Content: response}, nil
	}

	defaultText := p.Config.SurveyCompletedResponse
	if defaultText == "" {
		defaultText = DefaultSurveyCompletedResponse
	}
	response := s.registry.GetCompletedResponse(participant, p, defaultText)

	// The version pin and question pointer both stay: a completed
	// non-repeatable participant keeps getting the completion message even
	// after the poll is edited, instead of being re-asked new questions.
	if err := s.registry.SaveParticipant(ctx, scopeID, participant); err != nil {
		return model.Reply{}, err
	}
	metrics.SurveysCompleted.WithLabelValues(p.PollID).Inc()

	if s.opts.MultiPoll {
		if err := s.nextPollOrArchive(ctx, scopeID, participant); err != nil {
			return model.Reply{}, err
		}
	} else if p.Repeatable() {
		// Archive so the user can dial in again and start over; the
		// history keeps this run's answers for audit.
		if err := s.registry.Archive(ctx, scopeID, participant); err != nil {
			return model.Reply{}, err
		}
	}

	return model.Reply{Content: response}, nil
}

// nextPollOrArchive moves the participant to the next poll in the sequence,
// archiving instead when none exists or archiving was forced.
func (s *SurveyService) nextPollOrArchive(ctx context.Context, scopeID string, participant *model.Participant) error {
	if !participant.ForceArchive {
		moved, err := s.TryGoToNextPoll(ctx, scopeID, participant)
		if err != nil {
			return err
		}
		if moved {
			return nil
		}
	}
	return s.registry.Archive(ctx, scopeID, participant)
}

// TryGoToNextPoll advances the participant to the next numbered poll if it
// is registered.
func (s *SurveyService) TryGoToNextPoll(ctx context.Context, scopeID string, participant *model.Participant) (bool, error) {
	next := NextPollID(PollPrefix(scopeID), participant.PollID())
	return s.goToPoll(ctx, scopeID, participant, next)
}

// TryGoToSpecificPoll moves the participant to pollID if it differs from the
// current poll and is registered.
func (s *SurveyService) TryGoToSpecificPoll(ctx context.Context, scopeID string, participant *model.Participant, pollID string) (bool, error) {
	if pollID == participant.PollID() {
		return false, nil
	}
	return s.goToPoll(ctx, scopeID, participant, pollID)
}

func (s *SurveyService) goToPoll(ctx context.Context, scopeID string, participant *model.Participant, pollID string) (bool, error) {
	exists, err := s.registry.Exists(ctx, pollID)
	if err != nil || !exists {
		return false, err
	}
	participant.SetPollID(pollID)
	if err := s.registry.SaveParticipant(ctx, scopeID, participant); err != nil {
		return false, err
	}
	return true, nil
}
