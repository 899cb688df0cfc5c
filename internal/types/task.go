package types

// TaskStatus is the vendor-side lifecycle of an asynchronous generation job.
// Transitions are monotonic: PENDING → RUNNING → {SUCCEEDED, FAILED}. Once
// terminal, repeated queries return the same result.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
)

// Terminal reports whether no further transitions can occur.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskHandle is returned by a successful submission: the vendor-issued
// opaque task identifier plus submission metadata.
type TaskHandle struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Model     string     `json:"model,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// TaskOutcome is the normalized three-way view of a task query, collapsing
// each vendor's terminal-state vocabulary.
type TaskOutcome string

const (
	OutcomeProcessing TaskOutcome = "processing"
	OutcomeCompleted  TaskOutcome = "completed"
	OutcomeFailed     TaskOutcome = "failed"
)

// ImageResult is the payload of a completed image task.
type ImageResult struct {
	URLs []string `json:"urls"`
}

// VideoResult is the payload of a completed video task.
type VideoResult struct {
	URL           string `json:"url"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
}

// TaskError carries a vendor-reported failure verbatim.
type TaskError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// TaskResult is the tagged union returned by QueryTask. Exactly one of
// Image or Video is set when Outcome is completed; Err is set when Outcome
// is failed.
type TaskResult struct {
	TaskID  string         `json:"task_id"`
	Outcome TaskOutcome    `json:"outcome"`
	Image   *ImageResult   `json:"image,omitempty"`
	Video   *VideoResult   `json:"video,omitempty"`
	Err     *TaskError     `json:"error,omitempty"`
	Usage   map[string]any `json:"usage,omitempty"`
}

// Terminal reports whether the result will never change on re-query.
func (r *TaskResult) Terminal() bool {
	return r.Outcome == OutcomeCompleted || r.Outcome == OutcomeFailed
}
