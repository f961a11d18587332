package referral

import (
	"regexp"
	"sort"
	"strings"
)

// Field keys used in FormState.Errors.
const (
	FieldPatientName = "patientName"
	FieldPhone       = "phone"
	FieldEmail       = "email"
	FieldRefDoctor   = "refDoc"
	FieldRefOffice   = "refOffice"
)

// User-facing messages.
const (
	MsgCheckRequired   = "Please check the required fields above before submitting."
	MsgUploadFailed    = "Backend webhook failed or did not return a valid PDF URL."
	MsgSubmitFailed    = "Failed to submit the form. Please try again."
	MsgCaptchaRequired = "Please verify the reCAPTCHA!"
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{7,15}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Validate checks the required patient fields. It returns an empty map when
// every field passes.
func Validate(p PatientFields) map[string]string {
	errs := make(map[string]string)

	name := strings.TrimSpace(p.PatientName)
	phone := strings.TrimSpace(p.Phone)
	email := strings.TrimSpace(p.Email)

	if name == "" {
		errs[FieldPatientName] = "Patient name is required"
	}
	switch {
	case phone == "":
		errs[FieldPhone] = "Phone number is required"
	case !phonePattern.MatchString(phone):
		errs[FieldPhone] = "Phone number must contain only digits (7-15 characters)"
	}
	switch {
	case email == "":
		errs[FieldEmail] = "Email is required"
	case !emailPattern.MatchString(email):
		errs[FieldEmail] = "Please enter a valid email address"
	}
	if strings.TrimSpace(p.ReferringDoctor) == "" {
		errs[FieldRefDoctor] = "Referring doctor is required"
	}
	if strings.TrimSpace(p.ReferringOffice) == "" {
		errs[FieldRefOffice] = "Referring office is required"
	}
	return errs
}

// ValidationError carries per-field messages out of the submitter.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid fields: " + strings.Join(keys, ", ")
}
