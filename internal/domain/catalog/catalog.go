// Package catalog holds the fixed table of body systems used to organise
// findings. Every system has a stable key used internally and a display name
// used in URLs and upstream queries; lookups in both directions go through
// this table only.
package catalog

import "fmt"

// System identifies a body system by its internal key. The zero value means
// "no system".
type System string

const (
	Nervoso            System = "nervoso"
	Respiratorio       System = "respiratorio"
	Circulatorio       System = "circulatorio"
	Endocrino          System = "endocrino"
	Urinario           System = "urinario"
	Reprodutivo        System = "reprodutivo"
	Digestivo          System = "digestivo"
	Musculoesqueletico System = "musculoesqueletico"
)

// Column places a system on the left or right side of the body map.
type Column int

const (
	Left Column = iota
	Right
)

// Entry is one row of the system table.
type Entry struct {
	Key          System
	Name         string
	Icon         string
	Illustration string
	Column       Column
}

// entries is ordered as the systems appear on screen.
var entries = []Entry{
	{Nervoso, "Sistema Nervoso", "sistema-nervoso-icon.svg", "sistema-nervoso-img.svg", Left},
	{Respiratorio, "Sistema Respiratório", "sistema-respiratorio-icon.svg", "sistema-respiratorio-img.svg", Left},
	{Circulatorio, "Sistema Circulatório", "sistema-circulatorio-icon.svg", "sistema-circulatorio-img.svg", Left},
	{Endocrino, "Sistema Endócrino", "sistema-endocrino-icon.svg", "sistema-endocrino-img.svg", Left},
	{Urinario, "Sistema Urinário", "sistema-urinario-icon.svg", "sistema-urinario-img.svg", Right},
	{Reprodutivo, "Sistema Reprodutivo", "sistema-reprodutivo-icon.svg", "sistema-reprodutivo-masculino-img.svg", Right},
	{Digestivo, "Sistema Digestivo", "sistema-digestivo-icon.svg", "sistema-digestivo-img.svg", Right},
	{Musculoesqueletico, "Sistema Musculoesquelético", "sistema-musculoesqueletico-icon.svg", "sistema-musculoesqueletico-img.svg", Right},
}

var (
	byKey  = make(map[System]Entry, len(entries))
	byName = make(map[string]Entry, len(entries))
)

func init() {
	for _, e := range entries {
		if _, dup := byKey[e.Key]; dup {
			panic(fmt.Sprintf("catalog: duplicate system key %q", e.Key))
		}
		if _, dup := byName[e.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate system name %q", e.Name))
		}
		byKey[e.Key] = e
		byName[e.Name] = e
	}
}

// All returns the systems in display order.
func All() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// InColumn returns the systems shown in the given body-map column.
func InColumn(col Column) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Column == col {
			out = append(out, e)
		}
	}
	return out
}

// ByKey looks up a system by its internal key.
func ByKey(key System) (Entry, bool) {
	e, ok := byKey[key]
	return e, ok
}

// ByName resolves a display name (exact match) to its system.
func ByName(name string) (Entry, bool) {
	e, ok := byName[name]
	return e, ok
}

// Name returns the display name of s, or "" if s is not in the catalog.
func (s System) Name() string {
	return byKey[s].Name
}

// Valid reports whether s is a catalogued system.
func (s System) Valid() bool {
	_, ok := byKey[s]
	return ok
}
