package referral

import (
	"fmt"
	"strings"
	"time"

	"github.com/referral/intake/internal/platform/render"
)

const reasonsPerRow = 3

// BuildSections lays out the form as the fixed list of rendered sections:
// header, highlight bar, doctor selection, then a title and body for patient
// information, reasons, teeth, comments and attachments.
func BuildSections(in FormInput, files []AttachedFile, practice Practice, now time.Time) []render.Section {
	checkedDoctors := toSet(inOrder(Doctors, in.Doctors))
	checkedReasons := toSet(inOrder(Reasons, in.Reasons))
	checkedTeeth := toSet(inOrder(Teeth, in.Teeth))
	p := in.Patient()

	sections := []render.Section{
		headerSection(practice),
		{Name: "highlight-bar", Kind: render.KindHighlight},
		{
			Name: "doctor-select",
			Kind: render.KindBody,
			Rows: []render.Row{checkboxRow(Doctors, checkedDoctors)},
		},
	}

	patient := render.Section{
		Name: "patient-info",
		Kind: render.KindBody,
		Rows: []render.Row{
			{render.Text("Patient Name*: " + p.PatientName)},
			{render.Text("Phone*: " + p.Phone)},
			{render.Text("Email*: " + p.Email)},
			{render.Checkbox(LabelCallPatient, in.CallPatientForAppointment)},
			{render.Text("Referring Doctor*: " + p.ReferringDoctor)},
			{render.Text("Referring Office*: " + p.ReferringOffice)},
			{render.Text("Date: " + now.Format("02 Jan 2006"))},
		},
	}

	reasons := render.Section{Name: "referral-reasons", Kind: render.KindBody}
	for i := 0; i < len(Reasons); i += reasonsPerRow {
		end := min(i+reasonsPerRow, len(Reasons))
		reasons.Rows = append(reasons.Rows, checkboxRow(Reasons[i:end], checkedReasons))
	}

	teeth := render.Section{
		Name: "teeth-section",
		Kind: render.KindBody,
		Rows: []render.Row{
			checkboxRow(PermanentUpper, checkedTeeth),
			primaryRow("Right", PrimaryUpperRight, PrimaryUpperLeft, "Left", checkedTeeth),
			primaryRow("", PrimaryLowerRight, PrimaryLowerLeft, "", checkedTeeth),
			checkboxRow(PermanentLower, checkedTeeth),
		},
	}

	comments := render.Section{
		Name: "comments-section",
		Kind: render.KindBody,
		Rows: []render.Row{
			{render.Text(strings.TrimSpace(in.Comments))},
			{render.Checkbox(LabelCallBeforeTreatment, in.CallBeforeTreatment)},
			{render.Checkbox(LabelRadiographsSent+" "+NormalizeDate(in.RadiographDate, now), in.RadiographsSent)},
		},
	}

	attachments := render.Section{Name: "section-doc-uploading", Kind: render.KindBody}
	if len(files) == 0 {
		attachments.Rows = []render.Row{{render.Text("No files attached")}}
	}
	for i, f := range files {
		attachments.Rows = append(attachments.Rows, render.Row{
			render.Text(fmt.Sprintf("%d. %s (%s)", i+1, f.Name, humanSize(f.Size))),
		})
	}

	for _, pair := range []struct {
		title string
		body  render.Section
	}{
		{TitlePatientInfo, patient},
		{TitleReasons, reasons},
		{TitleTeeth, teeth},
		{TitleComments, comments},
		{TitleAttachments, attachments},
	} {
		sections = append(sections,
			render.Section{Name: "section-title", Kind: render.KindTitle, Rows: []render.Row{{render.Text(pair.title)}}},
			pair.body,
		)
	}
	return sections
}

func headerSection(p Practice) render.Section {
	s := render.Section{Name: "form-header", Kind: render.KindHeader}
	s.Rows = append(s.Rows, render.Row{render.Text(p.Name)})
	for _, line := range p.Address {
		s.Rows = append(s.Rows, render.Row{render.Text(line)})
	}
	for _, line := range []string{p.Phone, p.Email, p.Website} {
		if line != "" {
			s.Rows = append(s.Rows, render.Row{render.Text(line)})
		}
	}
	return s
}

func checkboxRow(labels []string, checked map[string]bool) render.Row {
	row := make(render.Row, 0, len(labels))
	for _, l := range labels {
		row = append(row, render.Checkbox(l, checked[l]))
	}
	return row
}

func primaryRow(lead string, right, left []string, trail string, checked map[string]bool) render.Row {
	row := render.Row{render.Text(lead)}
	row = append(row, checkboxRow(right, checked)...)
	row = append(row, checkboxRow(left, checked)...)
	return append(row, render.Text(trail))
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
