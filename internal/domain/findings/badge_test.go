package findings

import "testing"

func TestSystemBadge(t *testing.T) {
	tests := []struct {
		s     Summary
		text  string
		color string
	}{
		{Summary{Count: 0}, "Nenhum resultado adverso", ClearColor},
		{Summary{Count: 1, Severity: SeverityLow}, "1 pequena descoberta", SeverityLow.Color()},
		{Summary{Count: 4, Severity: SeverityHigh}, "4 pequenas descobertas", SeverityHigh.Color()},
	}
	for _, tt := range tests {
		b := SystemBadge(tt.s)
		if b.Text != tt.text || b.Color != tt.color {
			t.Errorf("SystemBadge(%+v) = %+v; want %q %q", tt.s, b, tt.text, tt.color)
		}
	}
}

func TestNodeBadge(t *testing.T) {
	if _, ok := NodeBadge(Summary{}); ok {
		t.Error("expected no badge for zero count")
	}
	b, ok := NodeBadge(Summary{Count: 1, Severity: SeverityMedium})
	if !ok || b.Text != "( 1 achado moderada )" {
		t.Errorf("unexpected badge %+v", b)
	}
	b, ok = NodeBadge(Summary{Count: 3, Severity: SeverityLow})
	if !ok || b.Text != "( 3 achados )" {
		t.Errorf("unexpected badge %+v", b)
	}
}

func TestIndex_MergesDuplicates(t *testing.T) {
	rows := []Summary{
		{System: "Sistema Nervoso", Organ: "Coluna", Count: 1, Severity: SeverityLow},
		{System: "Sistema Nervoso", Organ: "Coluna", Count: 2, Severity: SeverityHigh},
		{System: "Sistema Nervoso", Organ: "Cérebro", Count: 1, Severity: SeverityNone},
		{System: "Sistema Nervoso", Count: 9},
	}
	idx := ByOrgan(rows)
	if len(idx) != 2 {
		t.Fatalf("expected 2 organs, got %d", len(idx))
	}
	if c := idx["Coluna"]; c.Count != 3 || c.Severity != SeverityHigh {
		t.Errorf("unexpected merged row %+v", c)
	}
}

func TestCardHeading(t *testing.T) {
	if got := CardHeading(Finding{Severity: SeveritySevere}); got != "1 descoberta severa" {
		t.Errorf("unexpected heading %q", got)
	}
}
