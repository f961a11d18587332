package referral

import (
	"strings"
	"time"
)

// DateLayout is the dd-mm-yyyy format used on the wire.
const DateLayout = "02-01-2006"

// FormatDate formats t as dd-mm-yyyy.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeDate accepts a date picker value (yyyy-mm-dd) or an already
// formatted dd-mm-yyyy value and returns it as dd-mm-yyyy. An empty value
// becomes the given day; anything unparsable is returned trimmed as-is.
func NormalizeDate(raw string, today time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FormatDate(today)
	}
	for _, layout := range []string{"2006-01-02", DateLayout} {
		if t, err := parseDate(layout, raw); err == nil {
			return FormatDate(t)
		}
	}
	return raw
}

func parseDate(layout, raw string) (time.Time, error) {
	return time.Parse(layout, strings.TrimSpace(raw))
}

// ExtractOptions controls the values Extract cannot read from the input.
type ExtractOptions struct {
	// Now is the submission time used for the referral date and the
	// default radiograph date.
	Now time.Time
}

// Extract builds the structured record posted to the record webhook. It only
// reads the input.
func Extract(in FormInput, opts ExtractOptions) SubmissionRecord {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	p := in.Patient()

	return SubmissionRecord{
		Doctor: selectedDoctor(in.Doctors),
		Patient: RecordPatient{
			Name:                      p.PatientName,
			Phone:                     p.Phone,
			Email:                     p.Email,
			CallPatientForAppointment: yesNo(in.CallPatientForAppointment),
		},
		Referral: RecordReferral{
			Doctor: p.ReferringDoctor,
			Office: p.ReferringOffice,
			Date:   FormatDate(now),
		},
		ReasonForReferral:      strings.Join(inOrder(Reasons, in.Reasons), ", "),
		TeethOrAreaToBeTreated: classifyTeeth(in.Teeth),
		Comments:               strings.TrimSpace(in.Comments),
		Options: RecordOptions{
			CallBeforeTreatment: yesNo(in.CallBeforeTreatment),
			RadiographsSent: RadiographsSent{
				Sent:      yesNo(in.RadiographsSent),
				DateTaken: NormalizeDate(in.RadiographDate, now),
			},
		},
	}
}

func selectedDoctor(checked []string) string {
	if sel := inOrder(Doctors, checked); len(sel) > 0 {
		return sel[0]
	}
	return ""
}

func classifyTeeth(checked []string) TeethSelection {
	var numbers, right, left []string
	for _, t := range inOrder(Teeth, checked) {
		switch {
		case rightSide[t]:
			right = append(right, t)
		case leftSide[t]:
			left = append(left, t)
		default:
			numbers = append(numbers, t)
		}
	}
	return TeethSelection{
		Numbers: strings.Join(numbers, " "),
		Alphabets: PrimarySelection{
			Right: strings.Join(right, " "),
			Left:  strings.Join(left, " "),
		},
	}
}

// inOrder returns the members of catalog that appear in checked, in catalog
// order. Labels not in the catalog are dropped.
func inOrder(catalog, checked []string) []string {
	if len(checked) == 0 {
		return nil
	}
	set := make(map[string]bool, len(checked))
	for _, c := range checked {
		set[strings.TrimSpace(c)] = true
	}
	var out []string
	for _, label := range catalog {
		if set[label] {
			out = append(out, label)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
