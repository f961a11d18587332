package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/referral/intake/internal/platform/captcha"
	"github.com/referral/intake/internal/platform/render"
	"github.com/referral/intake/internal/platform/webhook"
)

// DocumentRenderer renders form sections into a PDF.
type DocumentRenderer interface {
	Render(ctx context.Context, canvas *render.Canvas, sections []render.Section) (*render.Document, error)
}

// Webhooks delivers the document and the record.
type Webhooks interface {
	UploadDocument(ctx context.Context, up webhook.DocumentUpload) (string, error)
	PostRecord(ctx context.Context, payload any) error
}

// FieldCaptcha is the error key used when the captcha gate refuses a form.
const FieldCaptcha = "captcha"

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithCaptcha gates submissions on v. Without it no token is required.
func WithCaptcha(v captcha.Verifier) SubmitterOption {
	return func(s *Submitter) { s.captcha = v }
}

// WithReceipts sets the repository every attempt is written to.
func WithReceipts(repo ReceiptRepository) SubmitterOption {
	return func(s *Submitter) { s.receipts = repo }
}

// WithPractice sets the branding drawn in the document header.
func WithPractice(p Practice) SubmitterOption {
	return func(s *Submitter) { s.practice = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

// Submitter runs the submission sequence: validate, render, upload the
// document, post the record.
type Submitter struct {
	renderer DocumentRenderer
	hooks    Webhooks
	captcha  captcha.Verifier
	receipts ReceiptRepository
	practice Practice
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSubmitter(renderer DocumentRenderer, hooks Webhooks, logger zerolog.Logger, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		renderer: renderer,
		hooks:    hooks,
		receipts: NewInMemoryReceiptRepo(0),
		practice: DefaultPractice(),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sections builds the rendered sections for the form's current content.
func (s *Submitter) Sections(f *Form) []render.Section {
	return BuildSections(f.Input(), f.Attachments(), s.practice, s.now())
}

// Preview renders the form without submitting it.
func (s *Submitter) Preview(ctx context.Context, f *Form) (*render.Document, error) {
	if f.Loading() {
		return nil, ErrSubmissionInFlight
	}
	return s.renderer.Render(ctx, f.Canvas, s.Sections(f))
}

// Submit runs one submission of f and returns the resulting FormState.
//
// A *ValidationError is returned when fields or the captcha are refused; no
// rendering or network call happens in that case. Any other error means the
// attempt failed after validation and the state carries a general error.
// ErrSubmissionInFlight is returned, with the current state, when f is
// already being submitted.
func (s *Submitter) Submit(ctx context.Context, f *Form, remoteIP string) (state FormState, err error) {
	in, files, err := f.begin()
	if err != nil {
		return f.State(), err
	}

	log := s.logger.With().Str("draft_id", f.ID.String()).Logger()
	started := s.now()
	receipt := &Receipt{
		FormID:      f.ID,
		PatientName: in.Patient().PatientName,
		Attachments: len(files),
		CreatedAt:   started,
	}
	phase := PhaseValidating

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Str("phase", string(phase)).Msg("submission panicked")
			f.fail(MsgSubmitFailed)
			err = fmt.Errorf("submission panicked: %v", r)
		}
		state = f.finish(s.now())
		s.writeReceipt(ctx, log, receipt, phase, err)
		log.Info().
			Str("phase", string(state.Phase)).
			Dur("elapsed", s.now().Sub(started)).
			Bool("ok", err == nil).
			Msg("submission finished")
	}()

	log.Debug().Str("phase", string(phase)).Msg("submission started")

	if fields := Validate(in.Patient()); len(fields) > 0 {
		f.invalid(fields, MsgCheckRequired)
		return state, &ValidationError{Fields: fields}
	}

	if s.captcha != nil {
		if cerr := s.captcha.Verify(ctx, in.CaptchaToken, remoteIP); cerr != nil {
			if errors.Is(cerr, captcha.ErrMissingToken) || errors.Is(cerr, captcha.ErrRejected) {
				fields := map[string]string{FieldCaptcha: MsgCaptchaRequired}
				f.invalid(fields, MsgCaptchaRequired)
				return state, &ValidationError{Fields: fields}
			}
			f.fail(MsgSubmitFailed)
			return state, fmt.Errorf("verify captcha: %w", cerr)
		}
	}

	phase = s.advance(f, log, PhaseRendering)
	doc, err := s.renderer.Render(ctx, f.Canvas, BuildSections(in, files, s.practice, started))
	if err != nil {
		f.fail(MsgSubmitFailed)
		return state, fmt.Errorf("render document: %w", err)
	}
	receipt.Pages = doc.Pages

	// The record is taken from the same input that was rendered, before any
	// network call.
	record := Extract(in, ExtractOptions{Now: started})

	phase = s.advance(f, log, PhaseUploadingDocument)
	p := in.Patient()
	pdfURL, err := s.hooks.UploadDocument(ctx, webhook.DocumentUpload{
		Name:        p.PatientName,
		Phone:       p.Phone,
		Email:       p.Email,
		PDF:         doc.Data,
		Attachments: toWebhookFiles(files),
	})
	if err != nil {
		if errors.Is(err, webhook.ErrDocumentRejected) || errors.Is(err, webhook.ErrMissingMediaURL) {
			f.fail(MsgUploadFailed)
		} else {
			f.fail(MsgSubmitFailed)
		}
		return state, fmt.Errorf("upload document: %w", err)
	}
	f.setPDFURL(pdfURL)
	receipt.PDFURL = &pdfURL

	phase = s.advance(f, log, PhaseUploadingRecord)
	if err = s.hooks.PostRecord(ctx, record); err != nil {
		f.fail(MsgSubmitFailed)
		return state, fmt.Errorf("post record: %w", err)
	}

	phase = PhaseDone
	f.succeed()
	return state, nil
}

func (s *Submitter) advance(f *Form, log zerolog.Logger, p Phase) Phase {
	f.setPhase(p)
	log.Debug().Str("phase", string(p)).Msg("submission phase")
	return p
}

func (s *Submitter) writeReceipt(ctx context.Context, log zerolog.Logger, r *Receipt, phase Phase, err error) {
	var verr *ValidationError
	switch {
	case err == nil:
		r.Status = ReceiptSucceeded
	case errors.As(err, &verr):
		r.Status = ReceiptInvalid
	default:
		r.Status = ReceiptFailed
		failed := string(phase)
		msg := err.Error()
		r.FailedPhase = &failed
		r.Error = &msg
	}

	if err := s.receipts.Create(context.WithoutCancel(ctx), r); err != nil {
		log.Error().Err(err).Msg("failed to store submission receipt")
	}
}

func toWebhookFiles(files []AttachedFile) []webhook.File {
	out := make([]webhook.File, 0, len(files))
	for _, f := range files {
		out = append(out, webhook.File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return out
}
