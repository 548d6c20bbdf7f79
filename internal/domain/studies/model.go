package studies

import (
	"sort"
	"time"
)

// Study is one imaging encounter. Its ID is the service request ID, which
// is also the report ID findings are filed under.
type Study struct {
	ID          string     `json:"id"`
	ClientName  string     `json:"clientName"`
	ClientEmail string     `json:"clientEmail"`
	ClientCPF   string     `json:"clientCpf"`
	ExamType    string     `json:"examType"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	Exams       []Exam     `json:"exams"`
}

// Exam is a single acquisition within a study.
type Exam struct {
	ID          string `json:"id"`
	Modality    string `json:"modality"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ReportID    string `json:"reportId"`
}

const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var statusLabels = map[string]string{
	StatusScheduled:  "Agendada",
	StatusInProgress: "Em andamento",
	StatusCompleted:  "Concluída",
	StatusCancelled:  "Cancelada",
}

// StatusLabel is the display text of the study status; unknown statuses are
// shown as sent.
func (s *Study) StatusLabel() string {
	if l, ok := statusLabels[s.Status]; ok {
		return l
	}
	return s.Status
}

// Completed reports whether results are available.
func (s *Study) Completed() bool {
	return s.Status == StatusCompleted
}

// ReportID is the identifier findings and the medical report are keyed by.
func (s *Study) ReportID() string {
	return s.ID
}

// When is the scheduled time when known, else the creation time.
func (s *Study) When() time.Time {
	if s.ScheduledAt != nil && !s.ScheduledAt.IsZero() {
		return *s.ScheduledAt
	}
	return s.CreatedAt
}

// Title is the heading shown above the body-system summary.
func (s *Study) Title() string {
	switch {
	case s.ClientName != "" && s.ExamType != "":
		return s.ClientName + " - " + s.ExamType
	case s.ExamType != "":
		return s.ExamType
	default:
		return s.ClientName
	}
}

// MostRecent returns the study with the latest When, or nil for an empty
// list. Ties keep the earlier entry.
func MostRecent(studies []Study) *Study {
	var best *Study
	for i := range studies {
		if best == nil || studies[i].When().After(best.When()) {
			best = &studies[i]
		}
	}
	return best
}

// Find returns the study with the given ID.
func Find(studies []Study, id string) *Study {
	for i := range studies {
		if studies[i].ID == id {
			return &studies[i]
		}
	}
	return nil
}

// ByRecency sorts studies newest first, in place.
func ByRecency(studies []Study) {
	sort.SliceStable(studies, func(i, j int) bool {
		return studies[i].When().After(studies[j].When())
	})
}
