package enums

import "fmt"

// StageStatus records the outcome of one stage transition attempt.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusFailed     StageStatus = "failed"
	StageStatusCompleted  StageStatus = "completed"
)

var validStageStatuses = []StageStatus{
	StageStatusPending,
	StageStatusProcessing,
	StageStatusFailed,
	StageStatusCompleted,
}

// String implements fmt.Stringer.
func (s StageStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StageStatus.
func (s StageStatus) IsValid() bool {
	for _, candidate := range validStageStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStageStatus converts raw input into a StageStatus.
func ParseStageStatus(value string) (StageStatus, error) {
	for _, candidate := range validStageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stage status %q", value)
}
