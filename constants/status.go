package constants

// JobStatus is the canonical lifecycle state of a job (stored as-is in the jobs table).
type JobStatus string

const (
	JobStatusUnsubmitted JobStatus = "unsubmitted"
	JobStatusPending     JobStatus = "pending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// AttemptStatus is the state of a single attempt.
type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "pending"
	AttemptStatusProcessing AttemptStatus = "processing"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusFailed     AttemptStatus = "failed"
)

// AttemptKind distinguishes a full run from a classification-only rerun.
type AttemptKind string

const (
	AttemptKindFull       AttemptKind = "full"
	AttemptKindReclassify AttemptKind = "reclassify"
)

var AttemptKinds = []string{string(AttemptKindFull), string(AttemptKindReclassify)}

var JobStatuses = []string{
	string(JobStatusUnsubmitted),
	string(JobStatusPending),
	string(JobStatusProcessing),
	string(JobStatusCompleted),
	string(JobStatusFailed),
}
