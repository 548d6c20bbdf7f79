package explorer

import (
	"net/url"

	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/findings"
)

// Query parameter names of the explorer URL contract.
const (
	ParamReportID  = "reportId"
	ParamSystem    = "system"
	ParamOrgan     = "organ"
	ParamPathology = "pathology"
)

// State is the navigation state of the explorer. It is exactly what the URL
// carries and is the only source of truth for what is expanded: the open
// system, organ and pathology are the ones named here.
//
// Organ and Pathology hold display labels. They can only be trusted once
// resolved against the fetched organ and pathology lists.
type State struct {
	ReportID  string
	System    catalog.System
	Organ     string
	Pathology string
}

// ParseState reads a State from query parameters. An unknown system name
// drops the system and everything under it.
func ParseState(q url.Values) State {
	s := State{ReportID: q.Get(ParamReportID)}
	e, ok := catalog.ByName(q.Get(ParamSystem))
	if !ok {
		return s
	}
	s.System = e.Key
	s.Organ = q.Get(ParamOrgan)
	if s.Organ != "" {
		s.Pathology = q.Get(ParamPathology)
	}
	return s
}

// Values encodes s as query parameters, omitting empty fields.
func (s State) Values() url.Values {
	q := url.Values{}
	if s.ReportID != "" {
		q.Set(ParamReportID, s.ReportID)
	}
	if name := s.System.Name(); name != "" {
		q.Set(ParamSystem, name)
		if s.Organ != "" {
			q.Set(ParamOrgan, s.Organ)
			if s.Pathology != "" {
				q.Set(ParamPathology, s.Pathology)
			}
		}
	}
	return q
}

// Encode returns the query string of s.
func (s State) Encode() string {
	return s.Values().Encode()
}

// URL returns the explorer path for s.
func (s State) URL(base string) string {
	if q := s.Encode(); q != "" {
		return base + "?" + q
	}
	return base
}

// Scope is the findings query for s.
func (s State) Scope() findings.Scope {
	return findings.Scope{
		ReportID:  s.ReportID,
		System:    s.System,
		Organ:     s.Organ,
		Pathology: s.Pathology,
	}
}

// ToggleSystem closes sys if it is open, otherwise opens it and closes any
// other system. Either way the organ and pathology are cleared.
func (s State) ToggleSystem(sys catalog.System) State {
	next := State{ReportID: s.ReportID}
	if s.System == sys || !sys.Valid() {
		return next
	}
	next.System = sys
	return next
}

// ToggleOrgan closes organ if it is open, otherwise opens it under the
// current system. The pathology is cleared either way.
func (s State) ToggleOrgan(organ string) State {
	next := State{ReportID: s.ReportID, System: s.System}
	if s.System == "" || s.Organ == organ {
		return next
	}
	next.Organ = organ
	return next
}

// TogglePathology closes pathology if it is open, otherwise opens it under
// the current organ.
func (s State) TogglePathology(pathology string) State {
	next := s
	if s.Organ == "" {
		next.Pathology = ""
		return next
	}
	if s.Pathology == pathology {
		next.Pathology = ""
		return next
	}
	next.Pathology = pathology
	return next
}

// SystemOpen, OrganOpen and PathologyOpen derive expansion from the state.
func (s State) SystemOpen(sys catalog.System) bool { return sys != "" && s.System == sys }
func (s State) OrganOpen(label string) bool      { return s.System != "" && label != "" && s.Organ == label }
func (s State) PathologyOpen(label string) bool {
	return s.Organ != "" && label != "" && s.Pathology == label
}
