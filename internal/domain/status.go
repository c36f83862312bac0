package domain

import (
	"fmt"
	"strings"
)

type JobStatus string

const (
	JobStatusRegistered JobStatus = "REGISTERED"
	JobStatusWorking    JobStatus = "WORKING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusError      JobStatus = "ERROR"
)

// ParseJobStatus accepts a status name in any letter case.
func ParseJobStatus(s string) (JobStatus, error) {
	switch status := JobStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case JobStatusRegistered, JobStatusWorking, JobStatusCompleted, JobStatusError:
		return status, nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// IsTerminal reports whether no transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusRegistered: {JobStatusWorking},
	JobStatusWorking:    {JobStatusCompleted, JobStatusError},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransitionError when from -> to is illegal.
func CheckTransition(jobID string, from, to JobStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{JobID: jobID, From: from, To: to}
	}
	return nil
}
