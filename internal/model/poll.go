// Package model defines data structures for the survey platform.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CheckOp is a comparison operator used in question eligibility checks.
type CheckOp string

const (
	OpEqual          CheckOp = "equal"
	OpNotEqual       CheckOp = "not-equal"
	OpExists         CheckOp = "exists"
	OpNotExists      CheckOp = "not-exists"
	OpLess           CheckOp = "less"
	OpLessOrEqual    CheckOp = "less-or-equal"
	OpGreater        CheckOp = "greater"
	OpGreaterOrEqual CheckOp = "greater-or-equal"
)

var validOps = map[CheckOp]bool{
	OpEqual:          true,
	OpNotEqual:       true,
	OpExists:         true,
	OpNotExists:      true,
	OpLess:           true,
	OpLessOrEqual:    true,
	OpGreater:        true,
	OpGreaterOrEqual: true,
}

// Check is a single predicate over previously recorded labels. On the wire it
// is an [operator, label, value] triple.
type Check struct {
	Op    CheckOp
	Label string
	Value string
}

// UnmarshalJSON decodes the triple form and rejects unknown operators.
// The source system silently passed checks with unrecognized operators;
// that is treated as a configuration error here.
func (c *Check) UnmarshalJSON(data []byte) error {
	var triple []string
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) < 2 || len(triple) > 3 {
		return fmt.Errorf("check must be an [operator, label, value] triple, got %d elements", len(triple))
	}
	op := CheckOp(triple[0])
	if !validOps[op] {
		return fmt.Errorf("unknown check operator %q", triple[0])
	}
	c.Op = op
	c.Label = triple[1]
	if len(triple) == 3 {
		c.Value = triple[2]
	}
	return nil
}

// MarshalJSON encodes the triple form.
func (c Check) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{string(c.Op), c.Label, c.Value})
}

// Evaluate applies the predicate against the participant's labels. When
// caseSensitive is false both sides of value comparisons are folded.
func (c Check) Evaluate(labels map[string]string, caseSensitive bool) bool {
	actual, present := labels[c.Label]
	fold := func(s string) string {
		if caseSensitive {
			return s
		}
		return strings.ToLower(s)
	}

	switch c.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEqual:
		return present && fold(actual) == fold(c.Value)
	case OpNotEqual:
		return !present || fold(actual) != fold(c.Value)
	case OpLess:
		return present && compareValues(fold(actual), fold(c.Value)) < 0
	case OpLessOrEqual:
		return present && compareValues(fold(actual), fold(c.Value)) <= 0
	case OpGreater:
		return present && compareValues(fold(actual), fold(c.Value)) > 0
	case OpGreaterOrEqual:
		return present && compareValues(fold(actual), fold(c.Value)) >= 0
	}
	return false
}

// ChecksPass reports whether every check holds (logical AND). A question
// with no checks is always eligible.
func ChecksPass(checks []Check, labels map[string]string, caseSensitive bool) bool {
	for _, check := range checks {
		if !check.Evaluate(labels, caseSensitive) {
			return false
		}
	}
	return true
}

// compareValues orders numerically when both sides parse as numbers,
// lexicographically otherwise. Menu answers are usually numerals.
func compareValues(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// Question is a single survey prompt. Index is its position in the poll's
// question list and is assigned when the poll version is materialized.
type Question struct {
	Index          int      `json:"-"`
	Copy           string   `json:"copy"`
	Label          string   `json:"label,omitempty"`
	ValidResponses []string `json:"valid_responses,omitempty"`
	Checks         []Check  `json:"checks,omitempty"`
}

// StorageLabel is the key the answer is recorded under; defaults to the
// prompt text when no explicit label is configured.
func (q *Question) StorageLabel() string {
	if q.Label != "" {
		return q.Label
	}
	return q.Copy
}

// Accepts reports whether answer is valid for this question. An empty
// valid_responses list means free text: any answer is accepted.
func (q *Question) Accepts(answer string, caseSensitive bool) bool {
	if len(q.ValidResponses) == 0 {
		return true
	}
	for _, valid := range q.ValidResponses {
		if caseSensitive {
			if answer == valid {
				return true
			}
		} else if strings.EqualFold(answer, valid) {
			return true
		}
	}
	return false
}

// ConditionalResponse selects a closing message: the first one whose checks
// pass against the participant's labels wins.
type ConditionalResponse struct {
	Copy   string  `json:"copy"`
	Checks []Check `json:"checks,omitempty"`
}

// PollConfig is one immutable version of a poll's configuration. Versions
// are content-addressed; identical content always hashes to the same UID.
type PollConfig struct {
	Questions              []Question            `json:"questions"`
	BatchSize              int                   `json:"batch_size,omitempty"`
	Repeatable             bool                  `json:"repeatable,omitempty"`
	CaseSensitive          bool                  `json:"case_sensitive,omitempty"`
	BatchCompletedResponse string                `json:"batch_completed_response,omitempty"`
	SurveyCompletedResponse string               `json:"survey_completed_response,omitempty"`
	CompletedResponses     []ConditionalResponse `json:"completed_responses,omitempty"`
}

// UID computes the deterministic content hash for this configuration.
func (c *PollConfig) UID() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// ParsePollConfig decodes and validates a serialized poll configuration.
func ParsePollConfig(data []byte) (*PollConfig, error) {
	var cfg PollConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid poll config: %w", err)
	}
	return &cfg, nil
}
