package findings

import "fmt"

// ClearColor colors badges of nodes without findings.
const ClearColor = "rgba(34, 197, 94, 1)"

// Badge is the short status text shown under a tree node or body-map entry.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// SystemBadge describes the findings count of a body system.
func SystemBadge(s Summary) Badge {
	switch {
	case s.Count <= 0:
		return Badge{Text: "Nenhum resultado adverso", Color: ClearColor}
	case s.Count == 1:
		return Badge{Text: "1 pequena descoberta", Color: s.Severity.Color()}
	default:
		return Badge{Text: fmt.Sprintf("%d pequenas descobertas", s.Count), Color: s.Severity.Color()}
	}
}

// NodeBadge describes the findings count of an organ or pathology. Nodes
// without findings get no badge.
func NodeBadge(s Summary) (Badge, bool) {
	switch {
	case s.Count <= 0:
		return Badge{}, false
	case s.Count == 1:
		return Badge{Text: "( 1 achado " + s.Severity.Label() + " )", Color: s.Severity.Color()}, true
	default:
		return Badge{Text: fmt.Sprintf("( %d achados )", s.Count), Color: s.Severity.Color()}, true
	}
}

// CardHeading is the title line of a finding card.
func CardHeading(f Finding) string {
	return "1 descoberta " + f.Severity.Label()
}
