package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PollContext is one frame of a participant's poll stack: which poll they are
// in, which version they are pinned to, and the last question presented.
type PollContext struct {
	PollID            string `json:"poll_id"`
	UID               string `json:"uid"`
	LastQuestionIndex *int   `json:"last_question_index"`
}

func (p *PollContext) empty() bool {
	return p.PollID == ""
}

// Participant is one user's progress state through one or more polls. The
// wire format is a flat string-to-string map (the session store has no nested
// types); polls and labels are JSON-encoded as single string values.
type Participant struct {
	UserID string

	QuestionsPerSession   int
	Interactions          int
	OptedIn               bool
	Age                   int
	HasUnansweredQuestion bool
	Retries               int
	ForceArchive          bool
	UpdatedAt             float64

	Polls  []PollContext
	Labels map[string]string
}

// NewParticipant constructs a fresh session with a single empty poll frame.
func NewParticipant(userID string) *Participant {
	return &Participant{
		UserID:    userID,
		UpdatedAt: float64(time.Now().UnixNano()) / float64(time.Second),
		Polls:     []PollContext{{}},
		Labels:    make(map[string]string),
	}
}

// LoadParticipant reconstructs a session from its stored field map.
func LoadParticipant(userID string, fields map[string]string) (*Participant, error) {
	p := NewParticipant(userID)
	if len(fields) == 0 {
		return p, nil
	}
	if err := p.load(fields); err != nil {
		return nil, fmt.Errorf("corrupt session for %s: %w", userID, err)
	}
	return p, nil
}

func (p *Participant) load(fields map[string]string) error {
	p.QuestionsPerSession = intField(fields, "questions_per_session")
	p.Interactions = intField(fields, "interactions")
	p.OptedIn = boolField(fields, "opted_in")
	p.Age = intField(fields, "age")
	p.HasUnansweredQuestion = boolField(fields, "has_unanswered_question")
	p.Retries = intField(fields, "retries")
	p.ForceArchive = boolField(fields, "force_archive")
	if raw, ok := fields["updated_at"]; ok {
		ts, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("updated_at: %w", err)
		}
		p.UpdatedAt = ts
	}
	if raw, ok := fields["polls"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Polls); err != nil {
			return fmt.Errorf("polls: %w", err)
		}
	}
	if raw, ok := fields["labels"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Labels); err != nil {
			return fmt.Errorf("labels: %w", err)
		}
	}
	if p.Labels == nil {
		p.Labels = make(map[string]string)
	}
	if len(p.Polls) == 0 {
		p.Polls = []PollContext{{}}
	}
	return nil
}

// Dump serializes the session to its stored field map.
func (p *Participant) Dump() map[string]string {
	polls, _ := json.Marshal(p.Polls)
	labels, _ := json.Marshal(p.Labels)
	return map[string]string{
		"questions_per_session":   strconv.Itoa(p.QuestionsPerSession),
		"interactions":            strconv.Itoa(p.Interactions),
		"opted_in":                strconv.FormatBool(p.OptedIn),
		"age":                     strconv.Itoa(p.Age),
		"has_unanswered_question": strconv.FormatBool(p.HasUnansweredQuestion),
		"retries":                 strconv.Itoa(p.Retries),
		"force_archive":           strconv.FormatBool(p.ForceArchive),
		"updated_at":              strconv.FormatFloat(p.UpdatedAt, 'f', -1, 64),
		"polls":                   string(polls),
		"labels":                  string(labels),
	}
}

// CurrentPoll returns the top of the poll stack, creating an empty frame if
// the stack is somehow empty.
func (p *Participant) CurrentPoll() *PollContext {
	if len(p.Polls) == 0 {
		p.Polls = append(p.Polls, PollContext{})
	}
	return &p.Polls[len(p.Polls)-1]
}

// SetPollID moves the participant to a poll. An empty current frame is
// filled in place; otherwise a new frame is pushed, keeping history of which
// polls were visited.
func (p *Participant) SetPollID(id string) {
	current := p.CurrentPoll()
	if id == current.PollID {
		return
	}
	if current.empty() {
		current.PollID = id
		current.UID = ""
		current.LastQuestionIndex = nil
		return
	}
	p.Polls = append(p.Polls, PollContext{PollID: id})
}

// PollID returns the current frame's poll id, empty if unset.
func (p *Participant) PollID() string {
	return p.CurrentPoll().PollID
}

// SetPollUID pins the current frame to a poll version.
func (p *Participant) SetPollUID(uid string) {
	p.CurrentPoll().UID = uid
}

// PollUID returns the pinned version id, empty if unset.
func (p *Participant) PollUID() string {
	return p.CurrentPoll().UID
}

// SetLastQuestionIndex records the index of the question just presented.
func (p *Participant) SetLastQuestionIndex(index int) {
	p.CurrentPoll().LastQuestionIndex = &index
}

// LastQuestionIndex returns the last presented question's index; ok is false
// for a fresh session.
func (p *Participant) LastQuestionIndex() (int, bool) {
	idx := p.CurrentPoll().LastQuestionIndex
	if idx == nil {
		return 0, false
	}
	return *idx, true
}

// ClearLastQuestionIndex unsets the question pointer on the current frame.
func (p *Participant) ClearLastQuestionIndex() {
	p.CurrentPoll().LastQuestionIndex = nil
}

// SetLabel records an answer value under a label. Case is kept as submitted.
func (p *Participant) SetLabel(label, value string) {
	p.Labels[label] = value
}

// Label returns a recorded value; ok is false if the label was never set.
func (p *Participant) Label(label string) (string, bool) {
	value, ok := p.Labels[label]
	return value, ok
}

// DeleteLabel removes a recorded label.
func (p *Participant) DeleteLabel(label string) {
	delete(p.Labels, label)
}

// HasRemainingInteractions reports whether the batch quota allows another
// question. A zero QuestionsPerSession means unlimited.
func (p *Participant) HasRemainingInteractions() bool {
	if p.QuestionsPerSession > 0 {
		return p.Interactions < p.QuestionsPerSession
	}
	return true
}

// BatchCompleted resets per-batch state at a "dial in again" pause.
func (p *Participant) BatchCompleted() {
	p.Interactions = 0
	p.HasUnansweredQuestion = false
}

// PollCompleted resets the current frame after the survey ends.
func (p *Participant) PollCompleted() {
	p.BatchCompleted()
	p.CurrentPoll().PollID = ""
	p.SetPollUID("")
}

// Touch stamps the session as updated now.
func (p *Participant) Touch() {
	p.UpdatedAt = float64(time.Now().UnixNano()) / float64(time.Second)
}

// Counters and flags tolerate missing or mangled values; only the composite
// fields are strict about their encoding.
func intField(fields map[string]string, key string) int {
	n, _ := strconv.Atoi(fields[key])
	return n
}

func boolField(fields map[string]string, key string) bool {
	b, _ := strconv.ParseBool(fields[key])
	return b
}
