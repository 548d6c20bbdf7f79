// Package explorer implements the findings explorer: a three-level tree of
// body system, organ and pathology whose expansion is carried in the URL,
// with the findings of the selected node shown alongside.
package explorer

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kaiprevention/portal/internal/domain/catalog"
	"github.com/kaiprevention/portal/internal/domain/findings"
	"github.com/kaiprevention/portal/internal/platform/debounce"
	"github.com/kaiprevention/portal/internal/platform/upstream"
)

// Navigator receives URL replacements. query is the encoded query string
// of the new state.
type Navigator interface {
	ReplaceURL(query string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(query string)

func (f NavigatorFunc) ReplaceURL(query string) { f(query) }

// Options configures an Explorer.
type Options struct {
	// URLDebounce is the quiet period before a URL replacement is sent.
	URLDebounce time.Duration
	Navigator   Navigator
	// OnChange is called with a fresh view after every state or data change.
	OnChange func(View)
	Logger   zerolog.Logger
}

type pathologyKey struct {
	system catalog.System
	organ  string
}

// Explorer owns the navigation state of one explorer page and the data
// fetched for it. Fetches run concurrently and are never cancelled; each
// response is tagged with the selection it was issued for and dropped if
// the selection has moved on.
type Explorer struct {
	repo   findings.Repository
	logger zerolog.Logger
	nav    *debounce.Debouncer[string]
	notify func(View)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	flight singleflight.Group

	mu       sync.Mutex
	state    State
	selected catalog.System

	organs        []findings.Organ
	organsSystem  catalog.System
	organsLoading bool
	organsGen     uint64

	pathologies        map[pathologyKey][]findings.Pathology
	pathologiesLoading map[pathologyKey]bool

	results         []findings.Finding
	resultsLoading  bool
	resultsGen      uint64
	resultsScope    findings.Scope
	resultsResolved bool

	systemSummary    findings.Summaries
	organSummary     findings.Summaries
	organSummaryFor  catalog.System
	organSummaryGen  uint64
	pathologySummary map[pathologyKey]findings.Summaries

	// authErr is the first fetch failure caused by a rejected token.
	authErr error
}

// New creates an Explorer. ctx scopes every fetch the explorer makes and
// carries the caller's credentials.
func New(ctx context.Context, repo findings.Repository, opts Options) *Explorer {
	ctx, cancel := context.WithCancel(ctx)
	e := &Explorer{
		repo:               repo,
		logger:             opts.Logger,
		notify:             opts.OnChange,
		ctx:                ctx,
		cancel:             cancel,
		pathologies:        make(map[pathologyKey][]findings.Pathology),
		pathologiesLoading: make(map[pathologyKey]bool),
		pathologySummary:   make(map[pathologyKey]findings.Summaries),
	}
	nav := opts.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	e.nav = debounce.New(opts.URLDebounce, nav.ReplaceURL)
	return e
}

// Mount initialises the explorer from URL query parameters. The system name
// is resolved against the catalog immediately; the organ and pathology
// labels are resolved once their parent lists have been fetched, and
// dropped from the URL if they do not exist there.
func (e *Explorer) Mount(q url.Values) {
	s := ParseState(q)

	e.mu.Lock()
	e.state = s
	e.selected = s.System
	e.mu.Unlock()

	if s.ReportID != "" {
		e.goFetch(e.loadSystemSummary)
	}
	if s.System != "" {
		e.loadSystem(s.System)
	}
	e.loadResults()

	// Unknown system names or orphaned parameters were dropped by
	// ParseState; make the URL agree.
	if s.Encode() != q.Encode() {
		e.nav.Trigger(s.Encode())
	}
	e.changed()
}

// ToggleSystem opens or closes the system with the given key.
func (e *Explorer) ToggleSystem(key catalog.System) {
	if !key.Valid() {
		return
	}

	e.mu.Lock()
	next := e.state.ToggleSystem(key)
	opening := next.System == key
	reload := opening && !(e.selected == key && (e.organsSystem == key || e.organsLoading))
	if opening {
		e.selected = key
	}
	e.mu.Unlock()

	if reload {
		e.loadSystem(key)
	}
	e.setState(next)
}

// ToggleOrgan opens or closes the organ with the given key under the
// selected system. Unknown keys are ignored.
func (e *Explorer) ToggleOrgan(key string) {
	e.mu.Lock()
	organ, ok := e.findOrgan(key)
	if !ok || e.state.System == "" {
		e.mu.Unlock()
		return
	}
	next := e.state.ToggleOrgan(organ.Label)
	system := e.state.System
	e.mu.Unlock()

	if next.Organ != "" {
		e.loadOrgan(system, organ.Label)
	}
	e.setState(next)
}

// TogglePathology opens or closes the pathology with the given key under
// the open organ. It never fetches catalog data.
func (e *Explorer) TogglePathology(key string) {
	e.mu.Lock()
	pk := pathologyKey{e.state.System, e.state.Organ}
	var label string
	for _, p := range e.pathologies[pk] {
		if p.Key == key {
			label = p.Label
			break
		}
	}
	if label == "" {
		e.mu.Unlock()
		return
	}
	next := e.state.TogglePathology(label)
	e.mu.Unlock()

	e.setState(next)
}

// State returns the current navigation state.
func (e *Explorer) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Wait blocks until every fetch issued so far, and every fetch they chain
// into, has completed.
func (e *Explorer) Wait() {
	e.wg.Wait()
}

// Close abandons in-flight fetches and pending URL writes.
func (e *Explorer) Close() {
	e.nav.Stop()
	e.cancel()
}

func (e *Explorer) setState(next State) {
	e.mu.Lock()
	if next == e.state {
		e.mu.Unlock()
		return
	}
	e.state = next
	e.mu.Unlock()

	e.nav.Trigger(next.Encode())
	e.loadResults()
	e.changed()
}

func (e *Explorer) changed() {
	if e.notify != nil {
		e.notify(e.View())
	}
}

// Err returns upstream.ErrUnauthorized, wrapped, once any fetch has been
// rejected for its credentials. Other failures only degrade the view.
func (e *Explorer) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authErr
}

// warn logs a fetch failure. Failures caused by Close are expected and only
// logged at debug level. Must be called without mu held.
func (e *Explorer) warn(err error) *zerolog.Event {
	if errors.Is(err, upstream.ErrUnauthorized) {
		e.mu.Lock()
		if e.authErr == nil {
			e.authErr = err
		}
		e.mu.Unlock()
	}
	if e.ctx.Err() != nil {
		return e.logger.Debug().Err(err)
	}
	return e.logger.Warn().Err(err)
}

func (e *Explorer) goFetch(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// findOrgan must be called with mu held.
func (e *Explorer) findOrgan(key string) (findings.Organ, bool) {
	if e.organsSystem != e.state.System {
		return findings.Organ{}, false
	}
	for _, o := range e.organs {
		if o.Key == key {
			return o, true
		}
	}
	return findings.Organ{}, false
}

// loadSystem fetches the organ list and organ-level summary for system.
func (e *Explorer) loadSystem(system catalog.System) {
	e.mu.Lock()
	e.organsGen++
	gen := e.organsGen
	e.organsLoading = true
	e.organSummaryGen++
	sumGen := e.organSummaryGen
	reportID := e.state.ReportID
	e.mu.Unlock()

	e.goFetch(func() { e.fetchOrgans(system, gen) })
	if reportID != "" {
		e.goFetch(func() { e.fetchOrganSummary(reportID, system, sumGen) })
	}
}

func (e *Explorer) fetchOrgans(system catalog.System, gen uint64) {
	organs, err := e.repo.Organs(e.ctx, system)

	e.mu.Lock()
	if gen != e.organsGen || e.selected != system {
		e.mu.Unlock()
		e.logger.Debug().Str("system", string(system)).Msg("discarding stale organ list")
		return
	}
	e.organsLoading = false
	if err != nil {
		e.mu.Unlock()
		e.warn(err).Str("system", string(system)).Msg("fetch organs failed")
		e.changed()
		return
	}
	e.organs = organs
	e.organsSystem = system

	// Resolve the organ label carried by the URL now that the list is known.
	var resolve string
	drop := false
	if e.state.System == system && e.state.Organ != "" {
		found := false
		for _, o := range organs {
			if o.Label == e.state.Organ {
				found = true
				break
			}
		}
		if found {
			resolve = e.state.Organ
		} else {
			drop = true
		}
	}
	next := e.state
	if drop {
		next.Organ, next.Pathology = "", ""
	}
	e.mu.Unlock()

	if resolve != "" {
		e.loadOrgan(system, resolve)
	}
	if drop {
		e.setState(next)
		return
	}
	e.changed()
}

func (e *Explorer) fetchOrganSummary(reportID string, system catalog.System, gen uint64) {
	rows, err := e.repo.Summary(e.ctx, findings.Scope{ReportID: reportID, System: system})
	if err != nil {
		e.warn(err).Str("system", string(system)).Msg("fetch organ summary failed")
		return
	}
	e.mu.Lock()
	if gen != e.organSummaryGen {
		e.mu.Unlock()
		return
	}
	e.organSummary = findings.ByOrgan(rows)
	e.organSummaryFor = system
	e.mu.Unlock()
	e.changed()
}

func (e *Explorer) loadSystemSummary() {
	e.mu.Lock()
	reportID := e.state.ReportID
	e.mu.Unlock()

	rows, err := e.repo.Summary(e.ctx, findings.Scope{ReportID: reportID})
	if err != nil {
		e.warn(err).Str("report_id", reportID).Msg("fetch findings summary failed")
		return
	}
	e.mu.Lock()
	e.systemSummary = findings.BySystem(rows)
	e.mu.Unlock()
	e.changed()
}

// loadOrgan fetches the pathologies of organ (once per organ) and its
// pathology-level summary.
func (e *Explorer) loadOrgan(system catalog.System, organ string) {
	pk := pathologyKey{system, organ}

	e.mu.Lock()
	_, cached := e.pathologies[pk]
	_, summarised := e.pathologySummary[pk]
	if !cached {
		e.pathologiesLoading[pk] = true
	}
	reportID := e.state.ReportID
	e.mu.Unlock()

	if !cached {
		e.goFetch(func() { e.fetchPathologies(pk) })
	}
	if !summarised && reportID != "" {
		e.goFetch(func() { e.fetchPathologySummary(reportID, pk) })
	}
}

func (e *Explorer) fetchPathologies(pk pathologyKey) {
	flightKey := string(pk.system) + "\x00" + pk.organ
	v, err, _ := e.flight.Do(flightKey, func() (any, error) {
		e.mu.Lock()
		list, ok := e.pathologies[pk]
		e.mu.Unlock()
		if ok {
			return list, nil
		}
		return e.repo.Pathologies(e.ctx, pk.system, pk.organ)
	})

	e.mu.Lock()
	delete(e.pathologiesLoading, pk)
	if err != nil {
		e.mu.Unlock()
		e.warn(err).
			Str("system", string(pk.system)).
			Str("organ", pk.organ).
			Msg("fetch pathologies failed")
		e.changed()
		return
	}
	list, _ := v.([]findings.Pathology)
	if list == nil {
		list = []findings.Pathology{}
	}
	e.pathologies[pk] = list

	next := e.state
	drop := false
	if e.state.System == pk.system && e.state.Organ == pk.organ && e.state.Pathology != "" {
		drop = true
		for _, p := range list {
			if p.Label == e.state.Pathology {
				drop = false
				break
			}
		}
	}
	if drop {
		next.Pathology = ""
	}
	e.mu.Unlock()

	if drop {
		e.setState(next)
		return
	}
	e.changed()
}

func (e *Explorer) fetchPathologySummary(reportID string, pk pathologyKey) {
	rows, err := e.repo.Summary(e.ctx, findings.Scope{ReportID: reportID, System: pk.system, Organ: pk.organ})
	if err != nil {
		e.warn(err).
			Str("system", string(pk.system)).
			Str("organ", pk.organ).
			Msg("fetch pathology summary failed")
		return
	}
	e.mu.Lock()
	e.pathologySummary[pk] = findings.ByPathology(rows)
	e.mu.Unlock()
	e.changed()
}

// loadResults re-issues the findings fetch for the current four-tuple.
func (e *Explorer) loadResults() {
	e.mu.Lock()
	scope := e.state.Scope()
	if scope.ReportID == "" {
		e.results = nil
		e.resultsLoading = false
		e.resultsResolved = false
		e.mu.Unlock()
		return
	}
	if scope == e.resultsScope && (e.resultsResolved || e.resultsLoading) {
		e.mu.Unlock()
		return
	}
	e.resultsGen++
	gen := e.resultsGen
	e.resultsLoading = true
	e.resultsScope = scope
	e.mu.Unlock()

	e.goFetch(func() {
		list, err := e.repo.List(e.ctx, scope)

		e.mu.Lock()
		if gen != e.resultsGen || scope != e.state.Scope() {
			e.mu.Unlock()
			e.logger.Debug().Str("report_id", scope.ReportID).Msg("discarding stale findings")
			return
		}
		e.resultsLoading = false
		e.resultsResolved = true
		if err != nil {
			e.results = nil
			e.mu.Unlock()
			e.warn(err).
				Str("report_id", scope.ReportID).
				Str("system", string(scope.System)).
				Str("organ", scope.Organ).
				Str("pathology", scope.Pathology).
				Msg("fetch findings failed")
			e.changed()
			return
		}
		e.results = list
		e.mu.Unlock()
		e.changed()
	})
}
