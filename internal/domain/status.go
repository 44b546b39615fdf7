package domain

import (
	"errors"
	"fmt"
	"strings"
)

// JobStatus is the lifecycle state of a job record.
type JobStatus string

const (
	StatusFetched JobStatus = "fetched"
	StatusPosted  JobStatus = "posted"
	StatusSkipped JobStatus = "skipped"
	StatusFailed  JobStatus = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions is forward-only. Terminal states have no outgoing edges.
var validTransitions = map[JobStatus][]JobStatus{
	StatusFetched: {StatusPosted, StatusSkipped, StatusFailed},
	StatusPosted:  {},
	StatusSkipped: {},
	StatusFailed:  {},
}

func ParseStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// IsTransitionAllowed reports whether from -> to is a forward move.
func IsTransitionAllowed(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s JobStatus) IsTerminal() bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}
