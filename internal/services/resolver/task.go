package resolver

import (
	"time"

	"github.com/google/uuid"

	"github.com/Zerr0-C00L/rdfetch/internal/models"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

// TaskState is the step a DownloadTask has reached.
type TaskState string

const (
	TaskPending       TaskState = "pending"
	TaskAdding        TaskState = "adding"
	TaskSelecting     TaskState = "selecting"
	TaskFetching      TaskState = "fetching"
	TaskUnrestricting TaskState = "unrestricting"
	TaskReady         TaskState = "ready"
	TaskFailed        TaskState = "failed"
	TaskCancelled     TaskState = "cancelled"
)

// Done reports whether the state is terminal.
func (s TaskState) Done() bool {
	return s == TaskReady || s == TaskFailed || s == TaskCancelled
}

// DownloadTask is one resolution run. Callers only ever see copies.
type DownloadTask struct {
	ID         string              `json:"id"`
	Result     models.SearchResult `json:"result"`
	Choice     *debrid.FileChoice  `json:"file,omitempty"`
	RemoteID   string              `json:"remoteId,omitempty"`
	State      TaskState           `json:"state"`
	URL        string              `json:"url,omitempty"`
	Err        string              `json:"error,omitempty"`
	ErrKind    string              `json:"errorKind,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

func newTask(result models.SearchResult, choice *debrid.FileChoice, now time.Time) *DownloadTask {
	t := &DownloadTask{
		ID:        uuid.NewString(),
		Result:    result,
		State:     TaskPending,
		StartedAt: now.UTC(),
	}
	if choice != nil {
		c := *choice
		t.Choice = &c
	}
	return t
}

func (t *DownloadTask) snapshot() DownloadTask {
	s := *t
	if t.Choice != nil {
		c := *t.Choice
		s.Choice = &c
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		s.FinishedAt = &f
	}
	return s
}

func (t *DownloadTask) finish(state TaskState, err error, now time.Time) {
	t.State = state
	if err != nil {
		t.Err = err.Error()
		t.ErrKind = debrid.Kind(err)
	}
	f := now.UTC()
	t.FinishedAt = &f
}
