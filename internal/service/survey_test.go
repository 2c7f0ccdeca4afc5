package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuline/survey-platform/internal/kv"
	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/internal/poll"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/pkg/logger"
)

func newTestService(t *testing.T, opts Options) (*SurveyService, *registry.Manager, context.Context) {
	t.Helper()
	reg := registry.NewManager(kv.NewMemory(), "pm", logger.NewNop())
	return NewSurveyService(reg, logger.NewNop(), opts), reg, context.Background()
}

func colourSurvey() *model.PollConfig {
	return &model.PollConfig{
		BatchSize: 2,
		Questions: []model.Question{
			{
				Copy:           "What is your favourite colour? 1. Red 2. Blue",
				Label:          "colour",
				ValidResponses: []string{"red", "blue"},
			},
			{
				Copy:   "Why do you like red?",
				Label:  "reason",
				Checks: []model.Check{{Op: model.OpEqual, Label: "colour", Value: "red"}},
			},
			{
				Copy:  "What is your favourite animal?",
				Label: "animal",
			},
		},
	}
}

func send(t *testing.T, s *SurveyService, ctx context.Context, pollID, userID, content string) model.Reply {
	t.Helper()
	reply, err := s.HandleMessage(ctx, model.InboundMessage{
		PollID:  pollID,
		UserID:  userID,
		Content: content,
	})
	require.NoError(t, err)
	return reply
}

func TestSurveyFlow(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	_, err := reg.Register(ctx, "colour-survey", colourSurvey())
	require.NoError(t, err)

	// First contact presents the first question.
	reply := send(t, s, ctx, "colour-survey", "u1", "hi")
	assert.Equal(t, "What is your favourite colour? 1. Red 2. Blue", reply.Content)
	assert.True(t, reply.ContinueSession)

	// An invalid answer re-asks the same question.
	reply = send(t, s, ctx, "colour-survey", "u1", "green")
	assert.Equal(t, "What is your favourite colour? 1. Red 2. Blue", reply.Content)
	assert.True(t, reply.ContinueSession)

	// A valid answer moves to the follow-up whose check passes.
	reply = send(t, s, ctx, "colour-survey", "u1", "red")
	assert.Equal(t, "Why do you like red?", reply.Content)
	assert.True(t, reply.ContinueSession)

	// The second answer exhausts the batch of two; the session pauses even
	// though a question remains.
	reply = send(t, s, ctx, "colour-survey", "u1", "it is warm")
	assert.Equal(t, DefaultBatchCompletedResponse, reply.Content)
	assert.False(t, reply.ContinueSession)

	// Dialing in again resumes at the remaining question.
	reply = send(t, s, ctx, "colour-survey", "u1", "hello")
	assert.Equal(t, "What is your favourite animal?", reply.Content)
	assert.True(t, reply.ContinueSession)

	reply = send(t, s, ctx, "colour-survey", "u1", "cat")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)
	assert.False(t, reply.ContinueSession)

	// A completed non-repeatable survey keeps answering with the completion
	// message.
	reply = send(t, s, ctx, "colour-survey", "u1", "hi again")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)

	// Every answer landed in the tally exactly once.
	results, err := reg.Tally().Results(ctx, "colour-survey")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"red": 1, "blue": 0}, results["colour"])
	assert.Equal(t, map[string]int{"it is warm": 1}, results["reason"])
	assert.Equal(t, map[string]int{"cat": 1}, results["animal"])
}

func TestSurveyFlowSkipsFailedChecks(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	_, err := reg.Register(ctx, "colour-survey", colourSurvey())
	require.NoError(t, err)

	send(t, s, ctx, "colour-survey", "u1", "hi")
	reply := send(t, s, ctx, "colour-survey", "u1", "blue")

	// The "why red" follow-up is skipped for a blue answer.
	assert.Equal(t, "What is your favourite animal?", reply.Content)
}

func TestUnknownPoll(t *testing.T) {
	s, _, ctx := newTestService(t, Options{})

	reply := send(t, s, ctx, "no-such-poll", "u1", "hi")
	assert.Equal(t, DefaultUnavailableResponse, reply.Content)
	assert.False(t, reply.ContinueSession)
}

func TestConditionalCompletion(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	cfg := &model.PollConfig{
		Questions: []model.Question{
			{Copy: "Red or blue?", Label: "colour", ValidResponses: []string{"red", "blue"}},
		},
		SurveyCompletedResponse: "Thanks!",
		CompletedResponses: []model.ConditionalResponse{
			{
				Copy:   "Glad you like red!",
				Checks: []model.Check{{Op: model.OpEqual, Label: "colour", Value: "red"}},
			},
		},
	}
	_, err := reg.Register(ctx, "poll-1", cfg)
	require.NoError(t, err)

	send(t, s, ctx, "poll-1", "u1", "hi")
	reply := send(t, s, ctx, "poll-1", "u1", "red")
	assert.Equal(t, "Glad you like red!", reply.Content)

	send(t, s, ctx, "poll-1", "u2", "hi")
	reply = send(t, s, ctx, "poll-1", "u2", "blue")
	assert.Equal(t, "Thanks!", reply.Content)
}

func TestRepeatableSurveyRestarts(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	cfg := &model.PollConfig{
		Repeatable: true,
		Questions: []model.Question{
			{Copy: "Red or blue?", Label: "colour", ValidResponses: []string{"red", "blue"}},
		},
	}
	_, err := reg.Register(ctx, "poll-1", cfg)
	require.NoError(t, err)

	send(t, s, ctx, "poll-1", "u1", "hi")
	reply := send(t, s, ctx, "poll-1", "u1", "red")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)

	// The completed run was archived, so the next contact starts over.
	reply = send(t, s, ctx, "poll-1", "u1", "hi")
	assert.Equal(t, "Red or blue?", reply.Content)

	archived, err := reg.GetArchive(ctx, "poll-1", "u1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	value, _ := archived[0].Label("colour")
	assert.Equal(t, "red", value)
}

func TestVersionPinning(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	v1 := &model.PollConfig{
		Questions: []model.Question{
			{Copy: "Old first question?", Label: "one"},
			{Copy: "Old second question?", Label: "two"},
		},
	}
	_, err := reg.Register(ctx, "poll-1", v1)
	require.NoError(t, err)

	reply := send(t, s, ctx, "poll-1", "u1", "hi")
	assert.Equal(t, "Old first question?", reply.Content)

	// Edit the poll mid-survey.
	v2 := &model.PollConfig{
		Questions: []model.Question{
			{Copy: "New first question?", Label: "one"},
			{Copy: "New second question?", Label: "two"},
		},
	}
	_, err = reg.Register(ctx, "poll-1", v2)
	require.NoError(t, err)

	// The in-flight participant stays pinned to the version they started.
	reply = send(t, s, ctx, "poll-1", "u1", "an answer")
	assert.Equal(t, "Old second question?", reply.Content)

	// New participants get the latest version.
	reply = send(t, s, ctx, "poll-1", "u2", "hi")
	assert.Equal(t, "New first question?", reply.Content)
}

func TestCompletedParticipantStaysPinnedAcrossEdits(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	v1 := &model.PollConfig{
		Questions: []model.Question{
			{Copy: "Red or blue?", Label: "colour", ValidResponses: []string{"red", "blue"}},
		},
	}
	_, err := reg.Register(ctx, "poll-1", v1)
	require.NoError(t, err)

	send(t, s, ctx, "poll-1", "u1", "hi")
	reply := send(t, s, ctx, "poll-1", "u1", "red")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)

	participant, err := reg.GetParticipant(ctx, "poll-1", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, participant.PollUID(), "completed session keeps its version pin")

	// Append a question in a new version. The completed participant must not
	// be re-asked it; they stay in the terminal state of the version they
	// finished.
	v2 := &model.PollConfig{
		Questions: []model.Question{
			{Copy: "Red or blue?", Label: "colour", ValidResponses: []string{"red", "blue"}},
			{Copy: "Cat or dog?", Label: "animal"},
		},
	}
	_, err = reg.Register(ctx, "poll-1", v2)
	require.NoError(t, err)

	reply = send(t, s, ctx, "poll-1", "u1", "hi")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)
	assert.False(t, reply.ContinueSession)

	// A fresh participant gets the new version in full.
	reply = send(t, s, ctx, "poll-1", "u2", "hi")
	assert.Equal(t, "Red or blue?", reply.Content)
	send(t, s, ctx, "poll-1", "u2", "blue")
	reply = send(t, s, ctx, "poll-1", "u2", "dog")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)
}

func TestUnlimitedBatch(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{})
	cfg := colourSurvey()
	cfg.BatchSize = 0
	_, err := reg.Register(ctx, "poll-1", cfg)
	require.NoError(t, err)

	send(t, s, ctx, "poll-1", "u1", "hi")
	send(t, s, ctx, "poll-1", "u1", "red")
	reply := send(t, s, ctx, "poll-1", "u1", "it is warm")
	assert.Equal(t, "What is your favourite animal?", reply.Content,
		"no batch pause with an unlimited quota")
	reply = send(t, s, ctx, "poll-1", "u1", "cat")
	assert.Equal(t, DefaultSurveyCompletedResponse, reply.Content)
}

func registerNumbered(t *testing.T, reg *registry.Manager, ctx context.Context, scope string, prompts ...string) {
	t.Helper()
	prefix := PollPrefix(scope)
	id := FirstPollID(prefix)
	for _, prompt := range prompts {
		cfg := &model.PollConfig{
			Questions:               []model.Question{{Copy: prompt, Label: prompt}},
			SurveyCompletedResponse: "Done: " + prompt,
		}
		_, err := reg.Register(ctx, id, cfg)
		require.NoError(t, err)
		id = NextPollID(prefix, id)
	}
}

func TestMultiPollChaining(t *testing.T) {
	s, reg, ctx := newTestService(t, Options{MultiPoll: true})
	registerNumbered(t, reg, ctx, "register", "Q0?", "Q1?")

	// The scope id routes to the first numbered poll.
	reply := send(t, s, ctx, "register", "u1", "hi")
	assert.Equal(t, "Q0?", reply.Content)

	// Completing a poll moves the participant to the next one.
	reply = send(t, s, ctx, "register", "u1", "a")
	assert.Equal(t, "Done: Q0?", reply.Content)

	reply = send(t, s, ctx, "register", "u1", "hi")
	assert.Equal(t, "Q1?", reply.Content)

	// Completing the last poll archives the whole run.
	reply = send(t, s, ctx, "register", "u1", "b")
	assert.Equal(t, "Done: Q1?", reply.Content)

	archived, err := reg.GetArchive(ctx, "register", "u1")
	require.NoError(t, err)
	require.Len(t, archived, 1)

	// And the next contact starts from the top.
	reply = send(t, s, ctx, "register", "u1", "hi")
	assert.Equal(t, "Q0?", reply.Content)
}

func TestMultiPollJumpLabel(t *testing.T) {
	logic := poll.AnswerLogicFunc(func(ctx context.Context, participant *model.Participant, answer string, question *model.Question) error {
		if answer == "jump" {
			participant.SetLabel(JumpLabel, "register_3")
		}
		return nil
	})
	s, reg, ctx := newTestService(t, Options{MultiPoll: true, AnswerLogic: logic})
	registerNumbered(t, reg, ctx, "register", "Q0?", "Q1?", "Q2?", "Q3?")

	send(t, s, ctx, "register", "u1", "hi") // Q0?
	send(t, s, ctx, "register", "u1", "a")  // done, -> register_1
	send(t, s, ctx, "register", "u1", "hi") // Q1?

	// The jump answer completes register_1 normally, which chains to
	// register_2 first.
	reply := send(t, s, ctx, "register", "u1", "jump")
	assert.Equal(t, "Done: Q1?", reply.Content)

	// The pending jump label is honored on the next contact, skipping
	// straight to register_3.
	reply = send(t, s, ctx, "register", "u1", "hi")
	assert.Equal(t, "Q3?", reply.Content)

	participant, err := reg.GetParticipant(ctx, "register", "u1")
	require.NoError(t, err)
	assert.Equal(t, "register_3", participant.PollID())
	_, ok := participant.Label(JumpLabel)
	assert.False(t, ok, "jump label is cleared once applied")
}

func TestMultiPollForceArchive(t *testing.T) {
	logic := poll.AnswerLogicFunc(func(ctx context.Context, participant *model.Participant, answer string, question *model.Question) error {
		if answer == "stop" {
			participant.ForceArchive = true
		}
		return nil
	})
	s, reg, ctx := newTestService(t, Options{MultiPoll: true, AnswerLogic: logic})
	registerNumbered(t, reg, ctx, "register", "Q0?", "Q1?")

	send(t, s, ctx, "register", "u1", "hi")
	reply := send(t, s, ctx, "register", "u1", "stop")
	assert.Equal(t, "Done: Q0?", reply.Content)

	// Archived despite register_1 existing.
	archived, err := reg.GetArchive(ctx, "register", "u1")
	require.NoError(t, err)
	require.Len(t, archived, 1)

	reply = send(t, s, ctx, "register", "u1", "hi")
	assert.Equal(t, "Q0?", reply.Content)
}

func TestNextPollID(t *testing.T) {
	prefix := PollPrefix("register")
	assert.Equal(t, "register_0", FirstPollID(prefix))
	assert.Equal(t, "register_0", NextPollID(prefix, ""))
	assert.Equal(t, "register_1", NextPollID(prefix, "register_0"))
	assert.Equal(t, "register_10", NextPollID(prefix, "register_9"))
	assert.Equal(t, "register_0", NextPollID(prefix, "unrelated"))
}
