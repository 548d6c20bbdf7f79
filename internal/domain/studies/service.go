package studies

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/explorer"
	"github.com/kaiprevention/portal/internal/domain/findings"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Dashboard tabs.
const (
	TabMine   = "meus-estudos"
	TabShared = "estudos-compartilhados"
)

// Tab is one entry of the dashboard tab bar.
type Tab struct {
	ID     string
	Label  string
	Active bool
	Href   string
}

// SummaryReader reads per-system finding aggregates.
type SummaryReader interface {
	Summary(ctx context.Context, scope findings.Scope) ([]findings.Summary, error)
}

// SystemCard is one body system on the dashboard body map.
type SystemCard struct {
	Key          catalog.System
	Name         string
	Icon         string
	Illustration string
	Badge        findings.Badge
	HasFindings  bool
	// Href opens the findings explorer on this system.
	Href string
}

// StudyOption is one entry of the study selector.
type StudyOption struct {
	ID       string
	Label    string
	Selected bool
}

// Dashboard is the view model of the dashboard page.
type Dashboard struct {
	Tabs     []Tab
	Tab      string
	Studies  []StudyOption
	Total    int
	Selected *Study
	Left     []SystemCard
	Right    []SystemCard
	// SummaryUnavailable is set when the study loaded but its findings
	// summary could not be fetched.
	SummaryUnavailable bool
}

// Empty reports whether the patient has no studies to show.
func (d *Dashboard) Empty() bool {
	return d.Selected == nil
}

// Service assembles the dashboard.
type Service struct {
	studies Repository
	summary SummaryReader
	logger  zerolog.Logger
}

func NewService(studies Repository, summary SummaryReader, logger zerolog.Logger) *Service {
	return &Service{studies: studies, summary: summary, logger: logger}
}

// Dashboard builds the page for tab, showing the study named by studyID or,
// when it is empty or unknown, the most recent one. With a studyID the
// study list and its summary are fetched concurrently.
func (s *Service) Dashboard(ctx context.Context, tab, studyID string) (*Dashboard, error) {
	if tab != TabShared {
		tab = TabMine
	}
	d := &Dashboard{Tab: tab, Tabs: tabs(tab)}
	if tab == TabShared {
		// No shared-study endpoint exists; the tab shows its empty state.
		return d, nil
	}

	var (
		list      []Study
		total     int
		summary   []findings.Summary
		summaryOK bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := s.studies.List(gctx)
		if err != nil {
			return fmt.Errorf("list studies: %w", err)
		}
		list, total = resp.Data, resp.Total()
		return nil
	})
	if studyID != "" {
		g.Go(func() error {
			rows, err := s.fetchSummary(gctx, studyID)
			if errors.Is(err, upstream.ErrUnauthorized) {
				return err
			}
			summary, summaryOK = rows, err == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, upstream.ErrUnauthorized) {
			s.logger.Error().Err(err).Msg("dashboard unavailable")
		}
		return nil, err
	}

	ByRecency(list)
	d.Total = total

	selected := Find(list, studyID)
	if selected == nil {
		selected = MostRecent(list)
		if selected != nil {
			rows, err := s.fetchSummary(ctx, selected.ReportID())
			if errors.Is(err, upstream.ErrUnauthorized) {
				return nil, err
			}
			summary, summaryOK = rows, err == nil
		}
	}
	if selected == nil {
		return d, nil
	}

	d.Selected = selected
	d.SummaryUnavailable = !summaryOK
	for _, st := range list {
		d.Studies = append(d.Studies, StudyOption{
			ID:       st.ID,
			Label:    studyOptionLabel(&st),
			Selected: st.ID == selected.ID,
		})
	}
	d.Left, d.Right = bodyMap(selected.ReportID(), findings.BySystem(summary))
	return d, nil
}

func (s *Service) fetchSummary(ctx context.Context, reportID string) ([]findings.Summary, error) {
	rows, err := s.summary.Summary(ctx, findings.Scope{ReportID: reportID})
	if err != nil {
		s.logger.Warn().Err(err).Str("report_id", reportID).Msg("findings summary unavailable")
		return nil, err
	}
	return rows, nil
}

func tabs(active string) []Tab {
	return []Tab{
		{ID: TabMine, Label: "Meus estudos", Active: active == TabMine, Href: "/dashboard?tab=" + TabMine},
		{ID: TabShared, Label: "Estudos compartilhados comigo", Active: active == TabShared, Href: "/dashboard?tab=" + TabShared},
	}
}

func studyOptionLabel(s *Study) string {
	t := s.When()
	if t.IsZero() {
		return s.Title()
	}
	return t.Format("02/01/2006") + " - " + s.Title()
}

// bodyMap lays the catalog out in its two columns with each system's badge.
func bodyMap(reportID string, bySystem findings.Summaries) (left, right []SystemCard) {
	for _, e := range catalog.All() {
		sum := bySystem[e.Name]
		card := SystemCard{
			Key:          e.Key,
			Name:         e.Name,
			Icon:         e.Icon,
			Illustration: e.Illustration,
			Badge:        findings.SystemBadge(sum),
			HasFindings:  sum.Count > 0,
			Href:         ExplorerURL(reportID, e.Key),
		}
		if e.Column == catalog.Left {
			left = append(left, card)
		} else {
			right = append(right, card)
		}
	}
	return left, right
}

// ExplorerURL links into the findings explorer with system open.
func ExplorerURL(reportID string, system catalog.System) string {
	return explorer.State{ReportID: reportID, System: system}.URL(explorer.BasePath)
}
