package middleware

import (
	"errors"
	"regexp"
)

var (
	pollIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]{1,128}$`)
)

// ValidatePollID checks a poll id path or query parameter.
func ValidatePollID(pollID string) error {
	if pollID == "" {
		return errors.New("poll id is required")
	}
	if !pollIDPattern.MatchString(pollID) {
		return errors.New("invalid poll id")
	}
	return nil
}

// ValidateUserID checks a participant user id parameter. User ids are
// usually MSISDNs, so a leading + is allowed.
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if !userIDPattern.MatchString(userID) {
		return errors.New("invalid user id")
	}
	return nil
}
