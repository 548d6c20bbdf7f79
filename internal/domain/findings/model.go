package findings

import (
	"time"

	"github.com/kaiprevention/portal/internal/domain/catalog"
)

// Finding is one detected observation as returned by GET /findings.
type Finding struct {
	ID                        string     `json:"id"`
	System                    string     `json:"system"`
	Organ                     string     `json:"organ"`
	Pathology                 string     `json:"pathology"`
	ImageURL                  *string    `json:"image_url"`
	Details                   string     `json:"details"`
	RecommendationTitle       string     `json:"recommendation_title"`
	RecommendationDescription string     `json:"recommendation_description"`
	Severity                  Severity   `json:"severity"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
	Report                    *ReportRef `json:"report,omitempty"`
}

// HasRecommendation reports whether the finding carries any recommendation
// text to show in the expanded card.
func (f *Finding) HasRecommendation() bool {
	return f.RecommendationTitle != "" || f.RecommendationDescription != ""
}

// ReportRef is the back-reference from a finding to its report.
type ReportRef struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Organ is a system-scoped catalog entry from GET /system/organs.
type Organ struct {
	ID              int    `json:"id"`
	System          string `json:"system"`
	Key             string `json:"key"`
	Label           string `json:"label"`
	Active          bool   `json:"active"`
	IsSystemDefault bool   `json:"isSystemDefault"`
}

// Pathology is an organ-scoped catalog entry from GET /system/pathologies.
type Pathology struct {
	ID              int    `json:"id"`
	System          string `json:"system"`
	Organ           string `json:"organ"`
	Key             string `json:"key"`
	Label           string `json:"label"`
	Active          bool   `json:"active"`
	IsSystemDefault bool   `json:"isSystemDefault"`
}

// Summary is an aggregate row of GET /findings/summary. Depending on the
// scope of the query it describes a system, an organ or a pathology.
type Summary struct {
	System    string   `json:"system"`
	Organ     string   `json:"organ,omitempty"`
	Pathology string   `json:"pathology,omitempty"`
	Count     int      `json:"count"`
	Severity  Severity `json:"severity"`
}

// Scope narrows summary and finding queries. Empty fields are omitted from
// the query string.
type Scope struct {
	ReportID  string
	System    catalog.System
	Organ     string
	Pathology string
}

// Summaries indexes summary rows by label at one level of the hierarchy.
type Summaries map[string]Summary

// BySystem indexes rows by system display name.
func BySystem(rows []Summary) Summaries {
	return index(rows, func(s Summary) string { return s.System })
}

// ByOrgan indexes rows by organ label.
func ByOrgan(rows []Summary) Summaries {
	return index(rows, func(s Summary) string { return s.Organ })
}

// ByPathology indexes rows by pathology label.
func ByPathology(rows []Summary) Summaries {
	return index(rows, func(s Summary) string { return s.Pathology })
}

func index(rows []Summary, key func(Summary) string) Summaries {
	out := make(Summaries, len(rows))
	for _, r := range rows {
		k := key(r)
		if k == "" {
			continue
		}
		if prev, ok := out[k]; ok {
			prev.Count += r.Count
			prev.Severity = Max(prev.Severity, r.Severity)
			out[k] = prev
			continue
		}
		out[k] = r
	}
	return out
}
