package vitals

import "github.com/samber/lo"

// Gender is the encoded patient gender.
type Gender int

const (
	Female Gender = iota
	Male
)

func ParseGender(s string) (Gender, error) {
	switch s {
	case "Female":
		return Female, nil
	case "Male":
		return Male, nil
	default:
		return 0, ErrUnknownChoice
	}
}

func (g Gender) String() string {
	if g == Male {
		return "Male"
	}
	return "Female"
}

func (g Gender) Code() float64 { return float64(g) }

// YesNo encodes the boolean questions on the form (history, medication, symptoms, diet).
type YesNo int

const (
	No YesNo = iota
	Yes
)

func ParseYesNo(s string) (YesNo, error) {
	switch s {
	case "No":
		return No, nil
	case "Yes":
		return Yes, nil
	default:
		return 0, ErrUnknownChoice
	}
}

func (y YesNo) String() string {
	if y == Yes {
		return "Yes"
	}
	return "No"
}

func (y YesNo) Code() float64 { return float64(y) }

// PatientType tells whether the reading was taken on the ward or in clinic.
type PatientType int

const (
	Inpatient PatientType = iota
	Outpatient
)

func ParsePatientType(s string) (PatientType, error) {
	switch s {
	case "Inpatient":
		return Inpatient, nil
	case "Outpatient":
		return Outpatient, nil
	default:
		return 0, ErrUnknownChoice
	}
}

func (p PatientType) String() string {
	if p == Outpatient {
		return "Outpatient"
	}
	return "Inpatient"
}

func (p PatientType) Code() float64 { return float64(p) }

// Severity is the self-reported symptom severity.
type Severity int

const (
	Mild Severity = iota
	Moderate
	Severe
)

func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "Mild":
		return Mild, nil
	case "Moderate":
		return Moderate, nil
	case "Severe":
		return Severe, nil
	default:
		return 0, ErrUnknownChoice
	}
}

func (s Severity) String() string {
	switch s {
	case Moderate:
		return "Moderate"
	case Severe:
		return "Severe"
	default:
		return "Mild"
	}
}

func (s Severity) Code() float64 { return float64(s) }

// Choice is a selectable option rendered on the input form.
type Choice struct {
	Label string
	Code  int
}

// Choices lists the allowed labels for every categorical form field, keyed by field name.
func Choices() map[string][]Choice {
	genders := options([]Gender{Female, Male})
	yesNo := options([]YesNo{No, Yes})

	return map[string][]Choice{
		FieldGender:       genders,
		FieldHistory:      yesNo,
		FieldPatient:      options([]PatientType{Inpatient, Outpatient}),
		FieldTakeMed:      yesNo,
		FieldSeverity:     options([]Severity{Mild, Moderate, Severe}),
		FieldBreathShort:  yesNo,
		FieldVisualChange: yesNo,
		FieldNoseBleed:    yesNo,
		FieldDiet:         yesNo,
	}
}

type labeled interface {
	~int
	String() string
}

func options[T labeled](values []T) []Choice {
	return lo.Map(values, func(v T, _ int) Choice {
		return Choice{Label: v.String(), Code: int(v)}
	})
}
