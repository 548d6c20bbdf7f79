package explorer

import (
	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/findings"
)

// BasePath is the explorer page route; toggle links are built against it.
const BasePath = "/findings"

// View is a render-ready snapshot of the explorer. Href on every node is the
// URL the node's toggle leads to, so the tree also works as plain links.
type View struct {
	ReportID        string             `json:"reportId"`
	Query           string             `json:"query"`
	Systems         []SystemNode       `json:"systems"`
	Findings        []findings.Finding `json:"findings"`
	FindingsLoading bool               `json:"findingsLoading"`
	Selection       Selection          `json:"selection"`
}

// Selection names the deepest open node.
type Selection struct {
	System    string `json:"system,omitempty"`
	Organ     string `json:"organ,omitempty"`
	Pathology string `json:"pathology,omitempty"`
}

type SystemNode struct {
	Key     catalog.System `json:"key"`
	Name    string         `json:"name"`
	Icon    string         `json:"icon"`
	Badge   findings.Badge `json:"badge"`
	Open    bool           `json:"open"`
	Href    string         `json:"href"`
	Loading bool           `json:"loading"`
	Organs  []OrganNode    `json:"organs,omitempty"`
}

type OrganNode struct {
	Key         string          `json:"key"`
	Label       string          `json:"label"`
	Badge       *findings.Badge `json:"badge,omitempty"`
	Open        bool            `json:"open"`
	Href        string          `json:"href"`
	Loading     bool            `json:"loading"`
	Pathologies []PathologyNode `json:"pathologies,omitempty"`
}

type PathologyNode struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Badge *findings.Badge `json:"badge,omitempty"`
	Open  bool            `json:"open"`
	Href  string          `json:"href"`
}

// View builds a snapshot of the current state and data.
func (e *Explorer) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	v := View{
		ReportID:        s.ReportID,
		Query:           s.Encode(),
		Findings:        append([]findings.Finding(nil), e.results...),
		FindingsLoading: e.resultsLoading,
		Selection: Selection{
			System:    s.System.Name(),
			Organ:     s.Organ,
			Pathology: s.Pathology,
		},
	}

	for _, entry := range catalog.All() {
		node := SystemNode{
			Key:   entry.Key,
			Name:  entry.Name,
			Icon:  entry.Icon,
			Badge: findings.SystemBadge(e.systemSummary[entry.Name]),
			Open:  s.SystemOpen(entry.Key),
			Href:  s.ToggleSystem(entry.Key).URL(BasePath),
		}
		if node.Open {
			node.Loading = e.organsLoading
			if e.organsSystem == entry.Key {
				node.Organs = e.organNodes(s)
			}
		}
		v.Systems = append(v.Systems, node)
	}
	return v
}

// organNodes must be called with mu held.
func (e *Explorer) organNodes(s State) []OrganNode {
	out := make([]OrganNode, 0, len(e.organs))
	for _, o := range e.organs {
		node := OrganNode{
			Key:   o.Key,
			Label: o.Label,
			Open:  s.OrganOpen(o.Label),
			Href:  s.ToggleOrgan(o.Label).URL(BasePath),
		}
		if e.organSummaryFor == s.System {
			if b, ok := findings.NodeBadge(e.organSummary[o.Label]); ok {
				node.Badge = &b
			}
		}
		if node.Open {
			pk := pathologyKey{s.System, o.Label}
			node.Loading = e.pathologiesLoading[pk]
			node.Pathologies = e.pathologyNodes(s, pk)
		}
		out = append(out, node)
	}
	return out
}

// pathologyNodes must be called with mu held.
func (e *Explorer) pathologyNodes(s State, pk pathologyKey) []PathologyNode {
	list := e.pathologies[pk]
	summary := e.pathologySummary[pk]
	out := make([]PathologyNode, 0, len(list))
	for _, p := range list {
		node := PathologyNode{
			Key:   p.Key,
			Label: p.Label,
			Open:  s.PathologyOpen(p.Label),
			Href:  s.TogglePathology(p.Label).URL(BasePath),
		}
		if b, ok := findings.NodeBadge(summary[p.Label]); ok {
			node.Badge = &b
		}
		out = append(out, node)
	}
	return out
}
