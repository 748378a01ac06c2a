package attendance

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// State is a step of the observer submission flow.
type State int

const (
	Editing State = iota
	Reviewing
	Submitting
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Reviewing:
		return "reviewing"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SuccessMessageFormat is shown after a record has been stored.
const SuccessMessageFormat = "شكراً %s، تم إرسال الغياب بنجاح!"

const appendTimeout = 5 * time.Second

// Appender receives confirmed records.
type Appender interface {
	Append(ctx context.Context, rec Record)
}

// WorkflowConfig tunes the simulated latencies and record stamping.
type WorkflowConfig struct {
	SubmitDelay   time.Duration
	MessageTTL    time.Duration
	MaxImageBytes int64
	Location      *time.Location
	Now           func() time.Time
	OnSubmitted   func(Record)
}

// Snapshot is a read-only view of the workflow for rendering.
type Snapshot struct {
	State        State   `json:"state"`
	Draft        Draft   `json:"draft"`
	Absent       int     `json:"absentStudents"`
	Confirmation *Record `json:"confirmation,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// Workflow drives one observer's draft through
// Editing -> Reviewing -> Submitting -> Editing.
type Workflow struct {
	mu      sync.Mutex
	cfg     WorkflowConfig
	repo    Appender
	state   State
	draft   Draft
	pending *Record
	message string
	gen     uint64
	msgGen  uint64
	closed  bool
}

// NewWorkflow starts an empty draft in the Editing state.
func NewWorkflow(repo Appender, cfg WorkflowConfig) *Workflow {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 5 * time.Second
	}
	return &Workflow{cfg: cfg, repo: repo}
}

// checkEditable must be called with mu held.
func (w *Workflow) checkEditable() error {
	switch {
	case w.closed:
		return ErrClosed
	case w.state == Submitting:
		return ErrBusy
	case w.state != Editing:
		return ErrNotEditing
	}
	return nil
}

// Update replaces the draft fields. An empty image field keeps the current
// attachment; use ClearImage to drop it.
func (w *Workflow) Update(d Draft) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkEditable(); err != nil {
		return err
	}
	if err := d.validateCounts(); err != nil {
		return err
	}
	if d.AttendanceSheetImage == "" {
		d.AttendanceSheetImage = w.draft.AttendanceSheetImage
	}
	w.draft = d
	return nil
}

// AttachImage encodes r and stores it on the draft. The read happens
// outside the lock; the draft only changes once decoding has finished.
func (w *Workflow) AttachImage(r io.Reader) error {
	w.mu.Lock()
	err := w.checkEditable()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	encoded, err := EncodeImage(r, w.cfg.MaxImageBytes)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkEditable(); err != nil {
		return err
	}
	w.draft.AttendanceSheetImage = encoded
	return nil
}

// ClearImage removes the attachment from the draft.
func (w *Workflow) ClearImage() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkEditable(); err != nil {
		return err
	}
	w.draft.AttendanceSheetImage = ""
	return nil
}

// Submit validates the draft and moves it to review. On a validation error
// the workflow stays in Editing and nothing is stored.
func (w *Workflow) Submit() (Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkEditable(); err != nil {
		return Record{}, err
	}
	rec, err := NewRecord(w.draft, w.cfg.Now(), w.cfg.Location)
	if err != nil {
		return Record{}, err
	}
	w.pending = &rec
	w.state = Reviewing
	return rec, nil
}

// Edit leaves review and returns to the untouched draft.
func (w *Workflow) Edit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrClosed
	case w.state == Submitting:
		return ErrBusy
	case w.state != Reviewing:
		return ErrNotReviewing
	}
	w.pending = nil
	w.state = Editing
	return nil
}

// Confirm starts the simulated submission of the reviewed record. The
// returned channel is closed once the submission has completed or been
// discarded by Close.
func (w *Workflow) Confirm() (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return nil, ErrClosed
	case w.state == Submitting:
		return nil, ErrBusy
	case w.state != Reviewing:
		return nil, ErrNotReviewing
	}

	w.state = Submitting
	w.message = ""
	w.gen++
	gen, rec := w.gen, *w.pending
	done := make(chan struct{})
	time.AfterFunc(w.cfg.SubmitDelay, func() {
		defer close(done)
		w.complete(gen, rec)
	})
	return done, nil
}

func (w *Workflow) complete(gen uint64, rec Record) {
	w.mu.Lock()
	if w.closed || gen != w.gen || w.state != Submitting {
		w.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	w.repo.Append(ctx, rec)
	cancel()

	w.draft = Draft{}
	w.pending = nil
	w.state = Editing
	w.message = fmt.Sprintf(SuccessMessageFormat, rec.ObserverName)
	w.msgGen++
	msgGen := w.msgGen
	hook := w.cfg.OnSubmitted
	w.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	time.AfterFunc(w.cfg.MessageTTL, func() { w.clearMessage(msgGen) })
}

func (w *Workflow) clearMessage(msgGen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed && msgGen == w.msgGen {
		w.message = ""
	}
}

// Close discards the workflow. A submission still waiting on its delay
// completes as a no-op.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.gen++
}

// Snapshot returns the current state for display. Absent is clamped at 0
// while the draft counts more present students than the total.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		State:   w.state,
		Draft:   w.draft,
		Absent:  max(0, w.draft.Absent()),
		Message: w.message,
	}
	if w.pending != nil {
		rec := *w.pending
		s.Confirmation = &rec
	}
	return s
}
