package referral

import "strconv"

// Doctors lists the doctor-selection controls in declaration order.
var Doctors = []string{
	"Any Doctor",
	"Dr. Christopher Ricker, DMD, MS",
	"Dr. Andrew Timmerman, DMD",
}

// Reasons lists the referral-reason controls in declaration order.
var Reasons = []string{
	"Consult/Diagnosis",
	"Periodontal Therapy",
	"Peri-Implantitis",
	"Dental Implants",
	"Gingival Recession",
	"Wisdom Teeth Extractions",
	"All-on-Four (Hybrid)",
	"Gum Grafting",
	"Exposure of Impacted Tooth",
	"Snap-in Overdenture",
	"Bone Graft/Sinus Lift",
	"Crown Lengthening",
	"Extractions/Site Preservation",
	"LANAP/LAPIP",
	"Pre-Ortho Eval",
}

// Primary teeth rows as drawn on the diagram, each split into a right and a
// left half.
var (
	PrimaryUpperRight = []string{"A", "B", "C", "D", "E"}
	PrimaryUpperLeft  = []string{"F", "G", "H", "I", "J"}
	PrimaryLowerRight = []string{"T", "S", "R", "Q", "P"}
	PrimaryLowerLeft  = []string{"O", "N", "M", "L", "K"}
)

// PermanentUpper and PermanentLower are the numbered tooth rows: 1..16 on top,
// 32 down to 17 on the bottom.
var (
	PermanentUpper = numberRange(1, 16)
	PermanentLower = numberRange(32, 17)
)

// Teeth lists every tooth control in declaration order.
var Teeth = concat(
	PermanentUpper,
	PrimaryUpperRight, PrimaryUpperLeft,
	PrimaryLowerRight, PrimaryLowerLeft,
	PermanentLower,
)

var (
	rightSide = toSet(concat(PrimaryUpperRight, PrimaryLowerRight))
	leftSide  = toSet(concat(PrimaryUpperLeft, PrimaryLowerLeft))
)

// Form copy shared by the HTML page and the rendered document.
const (
	TitlePatientInfo = "Patient Information"
	TitleReasons     = "Reason for Referral"
	TitleTeeth       = "Please Mark Teeth or Area to be Treated"
	TitleComments    = "Working Diagnosis / Comments:"
	TitleAttachments = "Please add Attachments"

	LabelCallPatient         = "Please call patient to schedule appointment"
	LabelCallBeforeTreatment = "Please call me before proceeding with treatment"
	LabelRadiographsSent     = "I have sent radiographs for your evaluation. Date taken:"
	LabelHighlight           = "Doctor Referral Form"
)

// Practice is the branding shown in the form header.
type Practice struct {
	Name    string
	Address []string
	Phone   string
	Email   string
	Website string
}

// DefaultPractice returns the built-in practice header.
func DefaultPractice() Practice {
	return Practice{
		Name:    "Carolina Implants",
		Address: []string{"9920 Kincey Ave, Suite 280", "Huntersville, NC 28708"},
		Phone:   "(704) 332-3000",
		Email:   "info@carolinaimplants.com",
		Website: "www.carolinaimplants.com",
	}
}

func numberRange(from, to int) []string {
	var out []string
	if from <= to {
		for i := from; i <= to; i++ {
			out = append(out, strconv.Itoa(i))
		}
		return out
	}
	for i := from; i >= to; i-- {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
