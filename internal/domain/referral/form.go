package referral

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/referral/intake/internal/platform/render"
)

// ErrSubmissionInFlight is returned when a form is changed or submitted while
// a submission is already running.
var ErrSubmissionInFlight = errors.New("submission already in progress")

// Form owns the input, attachments and FormState of one referral. All
// mutation goes through its methods; while loading is set, user edits are
// refused.
type Form struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Canvas    *render.Canvas

	mu          sync.Mutex
	input       FormInput
	state       FormState
	attachments *AttachmentList
	lastActive  time.Time
}

// NewForm creates an idle form holding in.
func NewForm(in FormInput, now time.Time) *Form {
	f := &Form{
		ID:         uuid.New(),
		CreatedAt:  now,
		Canvas:     render.NewCanvas(render.DefaultCanvasWidth),
		lastActive: now,
		state: FormState{
			Phase:  PhaseIdle,
			Errors: map[string]string{},
		},
	}
	// onChange runs while f.mu is held by the caller.
	f.attachments = NewAttachmentList(func(files []AttachedFile) {
		f.state.AttachedFiles = files
	})
	f.applyInput(in, now)
	return f
}

// Input returns a copy of the current input.
func (f *Form) Input() FormInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.clone()
}

// State returns a copy of the current FormState.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// Attachments returns a copy of the attached files.
func (f *Form) Attachments() []AttachedFile {
	return f.attachments.Files()
}

// LastActive reports when the form was last changed.
func (f *Form) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

// Loading reports whether a submission is running.
func (f *Form) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Loading
}

// SetInput replaces the form input.
func (f *Form) SetInput(in FormInput, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Loading {
		return ErrSubmissionInFlight
	}
	f.applyInput(in, now)
	return nil
}

// AddAttachments appends files to the attachment list.
func (f *Form) AddAttachments(now time.Time, files ...AttachedFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Loading {
		return ErrSubmissionInFlight
	}
	f.attachments.Add(files...)
	f.lastActive = now
	return nil
}

// RemoveAttachment removes the file at index i.
func (f *Form) RemoveAttachment(i int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Loading {
		return ErrSubmissionInFlight
	}
	if err := f.attachments.RemoveAt(i); err != nil {
		return err
	}
	f.lastActive = now
	return nil
}

func (f *Form) applyInput(in FormInput, now time.Time) {
	f.input = in.clone()
	f.state.SelectedRadiographDate = NormalizeDate(in.RadiographDate, now)
	if tok := in.CaptchaToken; tok != "" {
		f.state.CaptchaToken = &tok
	} else {
		f.state.CaptchaToken = nil
	}
	f.lastActive = now
}

// begin starts a submission: it clears previous errors and the download link,
// sets loading and returns the input and files to submit.
func (f *Form) begin() (FormInput, []AttachedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Loading {
		return FormInput{}, nil, ErrSubmissionInFlight
	}
	f.state.Loading = true
	f.state.Phase = PhaseValidating
	f.state.Errors = map[string]string{}
	f.state.GeneralError = ""
	f.state.GeneratedPDFURL = ""
	return f.input.clone(), f.attachments.Files(), nil
}

func (f *Form) setPhase(p Phase) {
	f.mu.Lock()
	f.state.Phase = p
	f.mu.Unlock()
}

func (f *Form) invalid(fields map[string]string, general string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range fields {
		f.state.Errors[k] = v
	}
	f.state.GeneralError = general
	f.state.Phase = PhaseIdle
}

func (f *Form) setPDFURL(u string) {
	f.mu.Lock()
	f.state.GeneratedPDFURL = u
	f.mu.Unlock()
}

// fail records a failed submission. The download link is dropped so that only
// the error is shown.
func (f *Form) fail(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.GeneralError = msg
	f.state.GeneratedPDFURL = ""
	f.state.Phase = PhaseFailed
}

func (f *Form) succeed() {
	f.setPhase(PhaseDone)
}

// finish clears loading and returns the final state.
func (f *Form) finish(now time.Time) FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Loading = false
	f.lastActive = now
	return f.state.clone()
}
