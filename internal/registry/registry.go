// Package registry orchestrates poll version storage and participant
// sessions: it pins participants to poll versions, persists their progress,
// and archives completed or abandoned sessions.
package registry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/kv"
	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/internal/poll"
	"github.com/menuline/survey-platform/internal/results"
	"github.com/menuline/survey-platform/internal/session"
	"github.com/menuline/survey-platform/pkg/logger"
)

// Manager is the session registry. Operations referencing an unknown poll id
// degrade to empty results rather than failing; only tally registration-order
// violations surface as typed errors.
type Manager struct {
	store    kv.Store
	prefix   string
	sessions *session.Manager
	tally    *results.Manager
	logger   *logger.Logger
}

// NewManager creates a registry rooted at the given key prefix.
func NewManager(store kv.Store, prefix string, log *logger.Logger) *Manager {
	return &Manager{
		store:    store,
		prefix:   prefix,
		sessions: session.NewManager(store, prefix),
		tally:    results.NewManager(store, kv.Key(prefix, "poll", "results")),
		logger:   log,
	}
}

// Tally exposes the registry's answer tally for read-side consumers.
func (m *Manager) Tally() *results.Manager {
	return m.tally
}

func (m *Manager) key(parts ...string) string {
	return kv.Key(append([]string{m.prefix}, parts...)...)
}

func (m *Manager) versionsKey(pollID string) string {
	return m.key("versions", pollID)
}

func (m *Manager) timestampsKey(pollID string) string {
	return m.key("version_timestamps", pollID)
}

func (m *Manager) archiveSetKey(pollID string) string {
	return m.key("archive", pollID)
}

func (m *Manager) sessionArchiveKey(pollID, userID string) string {
	return m.key("session_archive", pollID, userID)
}

func sessionKey(pollID, userID string) string {
	return kv.Key(pollID, userID)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Set stores a poll configuration as a new content-addressed version and
// appends it to the time-ordered version index. Registering identical
// content yields the same uid and overwrites in place.
func (m *Manager) Set(ctx context.Context, pollID string, cfg *model.PollConfig) (string, error) {
	uid, err := cfg.UID()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := m.store.HSet(ctx, m.versionsKey(pollID), uid, string(data)); err != nil {
		return "", err
	}
	if err := m.store.ZAdd(ctx, m.timestampsKey(pollID), unixSeconds(time.Now()), uid); err != nil {
		return "", err
	}
	return uid, nil
}

// Register stores a poll configuration and returns the materialized poll,
// with its questions registered in the tally.
func (m *Manager) Register(ctx context.Context, pollID string, cfg *model.PollConfig) (*poll.Poll, error) {
	uid, err := m.Set(ctx, pollID, cfg)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, pollID, uid)
}

// Exists reports whether any version of the poll is stored.
func (m *Manager) Exists(ctx context.Context, pollID string) (bool, error) {
	return m.store.Exists(ctx, m.versionsKey(pollID))
}

// resolve maps a requested uid to a stored version, falling back to the
// latest when the uid is empty or unknown. Returns ("", nil) when the poll
// has no versions at all.
func (m *Manager) resolve(ctx context.Context, pollID, uid string) (string, *model.PollConfig, error) {
	versionsKey := m.versionsKey(pollID)
	if uid != "" {
		raw, ok, err := m.store.HGet(ctx, versionsKey, uid)
		if err != nil {
			return "", nil, err
		}
		if ok {
			cfg, err := model.ParsePollConfig([]byte(raw))
			return uid, cfg, err
		}
		// Pinned version has vanished (manual data surgery); fall back to
		// latest rather than brick the participant mid-survey.
		m.logger.Warn("pinned poll version not found, falling back to latest",
			zap.String("poll_id", pollID),
			zap.String("uid", uid),
		)
	}

	uids, err := m.store.ZRange(ctx, m.timestampsKey(pollID), 0, -1, true)
	if err != nil {
		return "", nil, err
	}
	if len(uids) == 0 {
		return "", nil, nil
	}
	latest := uids[0]
	raw, ok, err := m.store.HGet(ctx, versionsKey, latest)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, nil
	}
	cfg, err := model.ParsePollConfig([]byte(raw))
	return latest, cfg, err
}

// GetConfig returns a stored poll configuration, resolving to the latest
// version when uid is empty or unknown. Returns nil when the poll id has no
// versions.
func (m *Manager) GetConfig(ctx context.Context, pollID, uid string) (*model.PollConfig, error) {
	_, cfg, err := m.resolve(ctx, pollID, uid)
	return cfg, err
}

// Get materializes a stored poll version, nil when the poll id is unknown.
func (m *Manager) Get(ctx context.Context, pollID, uid string) (*poll.Poll, error) {
	resolved, cfg, err := m.resolve(ctx, pollID, uid)
	if err != nil || cfg == nil {
		return nil, err
	}
	return poll.New(ctx, pollID, resolved, cfg, m.tally)
}

// GetParticipant loads the participant's session scoped to the poll id,
// constructing an empty session when none exists.
func (m *Manager) GetParticipant(ctx context.Context, pollID, userID string) (*model.Participant, error) {
	fields, err := m.sessions.Load(ctx, sessionKey(pollID, userID))
	if err != nil {
		return nil, err
	}
	return model.LoadParticipant(userID, fields)
}

// GetPollForParticipant resolves the poll version the participant is pinned
// to, falling back to the latest version when the pin no longer resolves.
// This is what gives a mid-survey participant version stability even if the
// poll is edited underneath them.
func (m *Manager) GetPollForParticipant(ctx context.Context, pollID string, participant *model.Participant) (*poll.Poll, error) {
	return m.Get(ctx, pollID, participant.PollUID())
}

// SaveParticipant stamps and persists the session.
func (m *Manager) SaveParticipant(ctx context.Context, pollID string, participant *model.Participant) error {
	participant.Touch()
	return m.sessions.Save(ctx, sessionKey(pollID, participant.UserID), participant.Dump())
}

// CloneParticipant duplicates a session under a new identity and returns the
// stored copy.
func (m *Manager) CloneParticipant(ctx context.Context, participant *model.Participant, pollID, newUserID string) (*model.Participant, error) {
	participant.Touch()
	if err := m.sessions.Save(ctx, sessionKey(pollID, newUserID), participant.Dump()); err != nil {
		return nil, err
	}
	return m.GetParticipant(ctx, pollID, newUserID)
}

// Archive appends the participant's full serialized state to the per-user
// history and clears the live session. History is append-only: every call
// adds an entry, never overwrites.
func (m *Manager) Archive(ctx context.Context, pollID string, participant *model.Participant) error {
	userID := participant.UserID
	if err := m.store.SAdd(ctx, m.archiveSetKey(pollID), userID); err != nil {
		return err
	}
	dump, err := json.Marshal(participant.Dump())
	if err != nil {
		return err
	}
	if err := m.store.ZAdd(ctx, m.sessionArchiveKey(pollID, userID), participant.UpdatedAt, string(dump)); err != nil {
		return err
	}
	return m.sessions.Clear(ctx, sessionKey(pollID, userID))
}

// GetArchive returns the participant's historical sessions, most recent
// first.
func (m *Manager) GetArchive(ctx context.Context, pollID, userID string) ([]*model.Participant, error) {
	dumps, err := m.store.ZRange(ctx, m.sessionArchiveKey(pollID, userID), 0, -1, true)
	if err != nil {
		return nil, err
	}
	archived := make([]*model.Participant, 0, len(dumps))
	for _, dump := range dumps {
		var fields map[string]string
		if err := json.Unmarshal([]byte(dump), &fields); err != nil {
			return nil, err
		}
		participant, err := model.LoadParticipant(userID, fields)
		if err != nil {
			return nil, err
		}
		archived = append(archived, participant)
	}
	return archived, nil
}

// InactiveParticipantUserIDs returns users whose sessions have been archived
// for the poll.
func (m *Manager) InactiveParticipantUserIDs(ctx context.Context, pollID string) ([]string, error) {
	return m.store.SMembers(ctx, m.archiveSetKey(pollID))
}

// ActiveParticipants enumerates sessions currently live for the poll.
func (m *Manager) ActiveParticipants(ctx context.Context, pollID string) ([]*model.Participant, error) {
	sessions, err := m.sessions.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	participants := make([]*model.Participant, 0, len(sessions))
	for _, s := range sessions {
		userID, ok := strings.CutPrefix(s.Key, pollID+":")
		if !ok {
			continue
		}
		participant, err := model.LoadParticipant(userID, s.Fields)
		if err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	return participants, nil
}

// GetCompletedResponse evaluates the poll's conditional completion messages
// against the participant's labels, falling back to defaultText.
func (m *Manager) GetCompletedResponse(participant *model.Participant, p *poll.Poll, defaultText string) string {
	return p.CompletedResponse(participant, defaultText)
}
