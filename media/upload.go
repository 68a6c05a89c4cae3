package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"igstore/blob"
)

// State is the phase of an UploadTask.
type State int

const (
	Idle State = iota
	Running
	Paused
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Success:
		return "success"
	case Failed:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// UploadCode classifies a failed upload.
type UploadCode string

const (
	PermissionDenied UploadCode = "permission-denied"
	Canceled         UploadCode = "canceled"
	UnknownFailure   UploadCode = "unknown"
)

// UploadError is the terminal failure of an upload. It is returned wrapped in a gaterr Upload
// error.
type UploadError struct {
	Code UploadCode
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %s: %v", e.Path, e.Code, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadCodeOf gives the code of the UploadError in err's chain, UnknownFailure otherwise.
func UploadCodeOf(err error) UploadCode {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return UnknownFailure
}

func uploadCode(err error) UploadCode {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	switch blob.CodeOf(err) {
	case blob.CodeUnauthorized:
		return PermissionDenied
	case blob.CodeCanceled:
		return Canceled
	}
	return UnknownFailure
}

// Event is a snapshot of an UploadTask handed to progress observers.
type Event struct {
	Path             string  `json:"path"`
	State            State   `json:"-"`
	StateName        string  `json:"state"`
	Percent          float64 `json:"percent"`
	BytesTransferred int64   `json:"bytesTransferred"`
	TotalBytes       int64   `json:"totalBytes"`
	URL              string  `json:"url,omitempty"`
	Code             string  `json:"code,omitempty"`
}

// ProgressFunc observes an upload. Calls are sequential per task and run on the transfer's
// goroutine, so a slow observer slows the upload.
type ProgressFunc func(Event)

// UploadTask tracks one transfer from idle to success or error. Percent never decreases and
// equals exactly 100 once the task succeeds.
type UploadTask struct {
	// deliver orders observer calls. mu guards the fields below and is released before
	// observers run, so they may read the task.
	deliver sync.Mutex

	mu          sync.Mutex
	path        string
	state       State
	transferred int64
	total       int64
	percent     float64
	observers   []ProgressFunc
}

func newUploadTask(path string, total int64, observers []ProgressFunc) *UploadTask {
	return &UploadTask{path: path, total: total, observers: observers}
}

// State gives the current phase.
func (t *UploadTask) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Percent gives the current progress in [0, 100].
func (t *UploadTask) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

func (t *UploadTask) start() {
	t.transition(func() (Event, bool) {
		if t.state != Idle {
			return Event{}, false
		}
		t.state = Running
		return Event{}, true
	})
}

// progress applies a backend snapshot. It is the blob.ProgressFunc of the transfer.
func (t *UploadTask) progress(p blob.Progress) {
	t.transition(func() (Event, bool) {
		if t.state != Running && t.state != Paused {
			return Event{}, false
		}
		if p.TotalBytes > 0 {
			t.total = p.TotalBytes
		}
		if p.BytesTransferred > t.transferred {
			t.transferred = p.BytesTransferred
		}
		if t.total > 0 {
			pct := float64(t.transferred) / float64(t.total) * 100
			if pct > 100 {
				pct = 100
			}
			if pct > t.percent {
				t.percent = pct
			}
		}
		if p.Paused {
			t.state = Paused
		} else {
			t.state = Running
		}
		return Event{}, true
	})
}

func (t *UploadTask) succeed(url string) {
	t.transition(func() (Event, bool) {
		t.state = Success
		t.percent = 100
		if t.total > 0 {
			t.transferred = t.total
		}
		return Event{URL: url}, true
	})
}

func (t *UploadTask) fail(code UploadCode) {
	t.transition(func() (Event, bool) {
		t.state = Failed
		return Event{Code: string(code)}, true
	})
}

// transition runs apply under mu and hands the resulting snapshot to the observers once mu is
// released. apply reports false to skip notification.
func (t *UploadTask) transition(apply func() (Event, bool)) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	e, ok := apply()
	if ok {
		e.Path = t.path
		e.State = t.state
		e.StateName = t.state.String()
		e.Percent = t.percent
		e.BytesTransferred = t.transferred
		e.TotalBytes = t.total
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range t.observers {
		fn(e)
	}
}

// inflight counts running uploads per destination path.
type inflight struct {
	mu    sync.Mutex
	paths map[string]int
}

// acquire registers an upload to path and reports whether another one was already running.
func (f *inflight) acquire(path string) (collision bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths == nil {
		f.paths = map[string]int{}
	}
	collision = f.paths[path] > 0
	f.paths[path]++
	return collision
}

func (f *inflight) release(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths[path] <= 1 {
		delete(f.paths, path)
		return
	}
	f.paths[path]--
}
