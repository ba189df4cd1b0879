package vitals

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Form field names posted by the input page.
const (
	FieldGender       = "gender"
	FieldAge          = "age"
	FieldHistory      = "history"
	FieldPatient      = "patient"
	FieldTakeMed      = "take_med"
	FieldSeverity     = "severity"
	FieldBreathShort  = "breath_short"
	FieldVisualChange = "visual_change"
	FieldNoseBleed    = "nose_bleed"
	FieldDiet         = "diet"
	FieldSystolic     = "systolic"
	FieldDiastolic    = "diastolic"
)

// FeatureCount is the width of the row the classifier was trained on.
const FeatureCount = 12

// FieldOrder is the column order used at training time. The model artifact depends on it.
var FieldOrder = [FeatureCount]string{
	FieldGender,
	FieldAge,
	FieldHistory,
	FieldPatient,
	FieldTakeMed,
	FieldSeverity,
	FieldBreathShort,
	FieldVisualChange,
	FieldNoseBleed,
	FieldDiet,
	FieldSystolic,
	FieldDiastolic,
}

var (
	ErrMissingField    = errors.New("missing field")
	ErrUnknownChoice   = errors.New("unknown choice")
	ErrMalformedNumber = errors.New("malformed number")
)

// FieldError reports which form field could not be encoded.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrMissingField) {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v %q", e.Field, e.Err, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// FeatureVector is one encoded patient row in FieldOrder.
type FeatureVector [FeatureCount]float64

// Slice returns the vector as a single inference row.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Lookup returns the raw value posted for a field. gin's Context.GetPostForm satisfies it.
type Lookup func(name string) (string, bool)

// FromValues adapts url.Values to a Lookup.
func FromValues(values url.Values) Lookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}
}

// Reading is the decoded form before it is flattened into a FeatureVector.
type Reading struct {
	Gender       Gender
	Age          float64
	History      YesNo
	Patient      PatientType
	TakeMed      YesNo
	Severity     Severity
	BreathShort  YesNo
	VisualChange YesNo
	NoseBleed    YesNo
	Diet         YesNo
	Systolic     float64
	Diastolic    float64
}

// Vector flattens the reading in training order.
func (r Reading) Vector() FeatureVector {
	return FeatureVector{
		r.Gender.Code(),
		r.Age,
		r.History.Code(),
		r.Patient.Code(),
		r.TakeMed.Code(),
		r.Severity.Code(),
		r.BreathShort.Code(),
		r.VisualChange.Code(),
		r.NoseBleed.Code(),
		r.Diet.Code(),
		r.Systolic,
		r.Diastolic,
	}
}

// Decode reads all twelve fields. The first field that fails stops decoding.
func Decode(get Lookup) (Reading, error) {
	d := decoder{get: get}
	r := Reading{
		Gender:       choice(&d, FieldGender, ParseGender),
		Age:          d.number(FieldAge),
		History:      choice(&d, FieldHistory, ParseYesNo),
		Patient:      choice(&d, FieldPatient, ParsePatientType),
		TakeMed:      choice(&d, FieldTakeMed, ParseYesNo),
		Severity:     choice(&d, FieldSeverity, ParseSeverity),
		BreathShort:  choice(&d, FieldBreathShort, ParseYesNo),
		VisualChange: choice(&d, FieldVisualChange, ParseYesNo),
		NoseBleed:    choice(&d, FieldNoseBleed, ParseYesNo),
		Diet:         choice(&d, FieldDiet, ParseYesNo),
		Systolic:     d.number(FieldSystolic),
		Diastolic:    d.number(FieldDiastolic),
	}
	if d.err != nil {
		return Reading{}, d.err
	}
	return r, nil
}

// Encode decodes the form and returns its feature vector.
func Encode(get Lookup) (FeatureVector, error) {
	r, err := Decode(get)
	if err != nil {
		return FeatureVector{}, err
	}
	return r.Vector(), nil
}

type decoder struct {
	get Lookup
	err error
}

func (d *decoder) raw(field string) (string, bool) {
	if d.err != nil {
		return "", false
	}
	v, ok := d.get(field)
	if !ok {
		d.err = &FieldError{Field: field, Err: ErrMissingField}
		return "", false
	}
	return v, true
}

func (d *decoder) number(field string) float64 {
	v, ok := d.raw(field)
	if !ok {
		return 0
	}
	f, err := parseDecimal(v)
	if err != nil {
		d.err = &FieldError{Field: field, Value: v, Err: ErrMalformedNumber}
		return 0
	}
	return f
}

// parseDecimal accepts decimal notation only. Values too large for a float64 become ±Inf.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "xX") {
		return 0, strconv.ErrSyntax
	}
	f, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) {
		return f, nil
	}
	return f, err
}

func choice[T any](d *decoder, field string, parse func(string) (T, error)) T {
	var zero T
	v, ok := d.raw(field)
	if !ok {
		return zero
	}
	out, err := parse(v)
	if err != nil {
		d.err = &FieldError{Field: field, Value: v, Err: err}
		return zero
	}
	return out
}
