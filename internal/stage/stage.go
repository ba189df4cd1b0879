// Package stage maps classifier output to blood pressure stage labels.
package stage

import "fmt"

// Code is a class code returned by the classifier.
type Code int

const (
	Normal Code = iota
	Hypertension1
	Hypertension2
	Crisis
)

// UnknownLabel is shown when the classifier returns a code outside the table.
const UnknownLabel = "Unknown"

var labels = map[Code]string{
	Normal:        "NORMAL",
	Hypertension1: "HYPERTENSION (Stage-1)",
	Hypertension2: "HYPERTENSION (Stage-2)",
	Crisis:        "HYPERTENSIVE CRISIS",
}

// Label returns the display label for a class code.
func Label(code int) string {
	if l, ok := labels[Code(code)]; ok {
		return l
	}
	return UnknownLabel
}

// Known reports whether the code is one of the four trained stages.
func Known(code int) bool {
	_, ok := labels[Code(code)]
	return ok
}

// Describe renders the result line shown to the user.
func Describe(code int) string {
	return fmt.Sprintf("Estimated Blood Pressure Stage: %s", Label(code))
}
