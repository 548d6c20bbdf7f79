package findings

import "fmt"

// Severity is the five-level rating attached to a finding.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeveritySevere Severity = "severe"
)

// Severities lists every rating from least to most serious.
var Severities = []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeveritySevere}

// Presentation is the label and color a severity renders with.
type Presentation struct {
	Label string
	Color string
}

var presentations = map[Severity]Presentation{
	SeverityNone:   {Label: "informativa", Color: "rgba(21, 122, 237, 1)"},
	SeverityLow:    {Label: "menor", Color: "rgba(253, 224, 71, 1)"},
	SeverityMedium: {Label: "moderada", Color: "rgba(245, 158, 11, 1)"},
	SeverityHigh:   {Label: "maior", Color: "rgba(244, 63, 94, 1)"},
	SeveritySevere: {Label: "severa", Color: "rgba(0, 0, 0, 1)"},
}

// DefaultPresentation is used for any value outside the enumeration.
var DefaultPresentation = presentations[SeverityLow]

func init() {
	for _, s := range Severities {
		if _, ok := presentations[s]; !ok {
			panic(fmt.Sprintf("findings: severity %q has no presentation", s))
		}
	}
}

// Present maps s to its label and color. Unknown values fall back to
// DefaultPresentation.
func Present(s Severity) Presentation {
	if p, ok := presentations[s]; ok {
		return p
	}
	return DefaultPresentation
}

func (s Severity) Label() string { return Present(s).Label }
func (s Severity) Color() string { return Present(s).Color }

// Valid reports whether s is one of the five ratings.
func (s Severity) Valid() bool {
	_, ok := presentations[s]
	return ok
}

// Rank orders severities; unknown values rank with low, matching their
// presentation.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return 1
}

// Max returns the more serious of a and b.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Dominant returns the most serious severity among fs, or SeverityNone when
// fs is empty.
func Dominant(fs []Finding) Severity {
	out := SeverityNone
	for _, f := range fs {
		out = Max(out, f.Severity)
	}
	return out
}
