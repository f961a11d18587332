package referral

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormInput is the raw state of every control on the referral form. Checked
// checkbox groups are given by label.
type FormInput struct {
	PatientName               string   `json:"patient_name"`
	Phone                     string   `json:"phone"`
	Email                     string   `json:"email"`
	CallPatientForAppointment bool     `json:"call_patient_for_appointment"`
	ReferringDoctor           string   `json:"referring_doctor"`
	ReferringOffice           string   `json:"referring_office"`
	Doctors                   []string `json:"doctors"`
	Reasons                   []string `json:"reasons"`
	Teeth                     []string `json:"teeth"`
	Comments                  string   `json:"comments"`
	CallBeforeTreatment       bool     `json:"call_before_treatment"`
	RadiographsSent           bool     `json:"radiographs_sent"`
	RadiographDate            string   `json:"radiograph_date"`
	CaptchaToken              string   `json:"captcha_token,omitempty"`
}

// PatientFields is the validated subset of a FormInput.
type PatientFields struct {
	PatientName     string
	Phone           string
	Email           string
	ReferringDoctor string
	ReferringOffice string
}

// Patient returns the trimmed required fields.
func (in FormInput) Patient() PatientFields {
	return PatientFields{
		PatientName:     strings.TrimSpace(in.PatientName),
		Phone:           strings.TrimSpace(in.Phone),
		Email:           strings.TrimSpace(in.Email),
		ReferringDoctor: strings.TrimSpace(in.ReferringDoctor),
		ReferringOffice: strings.TrimSpace(in.ReferringOffice),
	}
}

func (in FormInput) clone() FormInput {
	out := in
	out.Doctors = append([]string(nil), in.Doctors...)
	out.Reasons = append([]string(nil), in.Reasons...)
	out.Teeth = append([]string(nil), in.Teeth...)
	return out
}

// AttachedFile is a user-supplied file.
type AttachedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// Phase is a step of the submission state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseValidating        Phase = "validating"
	PhaseRendering         Phase = "rendering"
	PhaseUploadingDocument Phase = "uploading-document"
	PhaseUploadingRecord   Phase = "uploading-record"
	PhaseDone              Phase = "done"
	PhaseFailed            Phase = "failed"
)

// FormState is what the user sees of a form: field errors, the banner, the
// in-flight flag, attachments and the download link.
type FormState struct {
	Phase                  Phase             `json:"phase"`
	Errors                 map[string]string `json:"errors"`
	GeneralError           string            `json:"general_error"`
	Loading                bool              `json:"loading"`
	AttachedFiles          []AttachedFile    `json:"attached_files"`
	GeneratedPDFURL        string            `json:"generated_pdf_url"`
	SelectedRadiographDate string            `json:"selected_radiograph_date"`
	CaptchaToken           *string           `json:"-"`
}

func (s FormState) clone() FormState {
	out := s
	out.Errors = make(map[string]string, len(s.Errors))
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	out.AttachedFiles = append([]AttachedFile(nil), s.AttachedFiles...)
	if s.CaptchaToken != nil {
		tok := *s.CaptchaToken
		out.CaptchaToken = &tok
	}
	return out
}

// SubmissionRecord is the JSON document posted to the record webhook.
type SubmissionRecord struct {
	Doctor                 string         `json:"doctor"`
	Patient                RecordPatient  `json:"patient"`
	Referral               RecordReferral `json:"referral"`
	ReasonForReferral      string         `json:"reasonForReferral"`
	TeethOrAreaToBeTreated TeethSelection `json:"teethOrAreaToBeTreated"`
	Comments               string         `json:"comments"`
	Options                RecordOptions  `json:"options"`
}

type RecordPatient struct {
	Name                      string `json:"name"`
	Phone                     string `json:"phone"`
	Email                     string `json:"email"`
	CallPatientForAppointment string `json:"callPatientForAppointment"`
}

type RecordReferral struct {
	Doctor string `json:"doctor"`
	Office string `json:"office"`
	Date   string `json:"date"`
}

// TeethSelection partitions checked teeth into permanent (numbered) teeth and
// the right and left primary teeth.
type TeethSelection struct {
	Numbers   string           `json:"numbers"`
	Alphabets PrimarySelection `json:"alphabets"`
}

type PrimarySelection struct {
	Right string `json:"right"`
	Left  string `json:"left"`
}

type RecordOptions struct {
	CallBeforeTreatment string          `json:"callBeforeTreatment"`
	RadiographsSent     RadiographsSent `json:"radiographsSent"`
}

type RadiographsSent struct {
	Sent      string `json:"sent"`
	DateTaken string `json:"dateTaken"`
}

// Receipt statuses.
const (
	ReceiptSucceeded = "succeeded"
	ReceiptInvalid   = "invalid"
	ReceiptFailed    = "failed"
)

// Receipt is the audit entry written for every submission attempt.
type Receipt struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FormID      uuid.UUID `db:"form_id" json:"form_id"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	Status      string    `db:"status" json:"status"`
	FailedPhase *string   `db:"failed_phase" json:"failed_phase,omitempty"`
	PDFURL      *string   `db:"pdf_url" json:"pdf_url,omitempty"`
	Pages       int       `db:"pages" json:"pages"`
	Attachments int       `db:"attachments" json:"attachments"`
	Error       *string   `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
