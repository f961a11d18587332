package referral

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

const pageTemplate = "form.html"

// PageRenderer renders the embedded form page for echo.
type PageRenderer struct {
	tmpl *template.Template
}

func NewPageRenderer() (*PageRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &PageRenderer{tmpl: tmpl}, nil
}

// Render implements echo.Renderer.
func (r *PageRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

type choice struct {
	Label   string
	Checked bool
}

type pageData struct {
	Title     string
	Practice  Practice
	Input     FormInput
	State     FormState
	SiteKey   string
	Today     string
	DateValue string

	Doctors      []choice
	Reasons      []choice
	UpperTeeth   []choice
	PrimaryUpper []choice
	PrimaryLower []choice
	LowerTeeth   []choice

	Labels map[string]string
}

func (h *Handler) pageData(in FormInput, state FormState) pageData {
	now := h.svc.now()
	teeth := toSet(inOrder(Teeth, in.Teeth))
	return pageData{
		Title:        LabelHighlight,
		Practice:     h.svc.practice,
		Input:        in,
		State:        state,
		SiteKey:      h.siteKey,
		Today:        now.Format("02 Jan 2006"),
		DateValue:    pickerDate(in.RadiographDate),
		Doctors:      choices(Doctors, toSet(inOrder(Doctors, in.Doctors))),
		Reasons:      choices(Reasons, toSet(inOrder(Reasons, in.Reasons))),
		UpperTeeth:   choices(PermanentUpper, teeth),
		PrimaryUpper: choices(concat(PrimaryUpperRight, PrimaryUpperLeft), teeth),
		PrimaryLower: choices(concat(PrimaryLowerRight, PrimaryLowerLeft), teeth),
		LowerTeeth:   choices(PermanentLower, teeth),
		Labels: map[string]string{
			"PatientInfo":         TitlePatientInfo,
			"Reasons":             TitleReasons,
			"Teeth":               TitleTeeth,
			"Comments":            TitleComments,
			"Attachments":         TitleAttachments,
			"CallPatient":         LabelCallPatient,
			"CallBeforeTreatment": LabelCallBeforeTreatment,
			"RadiographsSent":     LabelRadiographsSent,
		},
	}
}

func choices(labels []string, checked map[string]bool) []choice {
	out := make([]choice, len(labels))
	for i, l := range labels {
		out[i] = choice{Label: l, Checked: checked[l]}
	}
	return out
}

// pickerDate converts a stored dd-mm-yyyy or yyyy-mm-dd value to the
// yyyy-mm-dd form expected by a date input.
func pickerDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02", DateLayout} {
		if t, err := parseDate(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
