package catalog

import "testing"

func TestCatalog_RoundTrip(t *testing.T) {
	all := All()
	if len(all) != 8 {
		t.Fatalf("expected 8 systems, got %d", len(all))
	}
	for _, e := range all {
		byName, ok := ByName(e.Name)
		if !ok || byName.Key != e.Key {
			t.Errorf("ByName(%q) = %v, %v; want key %q", e.Name, byName.Key, ok, e.Key)
		}
		byKey, ok := ByKey(e.Key)
		if !ok || byKey.Name != e.Name {
			t.Errorf("ByKey(%q) = %v, %v; want name %q", e.Key, byKey.Name, ok, e.Name)
		}
		if e.Key.Name() != e.Name {
			t.Errorf("%q.Name() = %q", e.Key, e.Key.Name())
		}
		if e.Icon == "" || e.Illustration == "" {
			t.Errorf("system %q is missing assets", e.Key)
		}
	}
}

func TestByName_ExactMatchOnly(t *testing.T) {
	for _, name := range []string{"sistema nervoso", "Sistema Nervoso ", "Nervoso", ""} {
		if _, ok := ByName(name); ok {
			t.Errorf("expected %q not to resolve", name)
		}
	}
	e, ok := ByName("Sistema Nervoso")
	if !ok || e.Key != Nervoso {
		t.Fatalf("expected Sistema Nervoso to resolve to nervoso, got %q", e.Key)
	}
}

func TestSystem_UnknownKey(t *testing.T) {
	var s System = "cardiaco"
	if s.Valid() {
		t.Error("expected unknown key to be invalid")
	}
	if s.Name() != "" {
		t.Errorf("expected empty name for unknown key, got %q", s.Name())
	}
	if System("").Valid() {
		t.Error("expected zero system to be invalid")
	}
}

func TestInColumn_SplitsEvenly(t *testing.T) {
	left, right := InColumn(Left), InColumn(Right)
	if len(left) != 4 || len(right) != 4 {
		t.Fatalf("expected 4/4 split, got %d/%d", len(left), len(right))
	}
	if left[0].Key != Nervoso || right[0].Key != Urinario {
		t.Errorf("unexpected column heads %q, %q", left[0].Key, right[0].Key)
	}
}
