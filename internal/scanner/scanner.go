package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/health"
)

// Endpoint describes a concrete URL a strategy may contact, provided by config.
type Endpoint struct {
	Name string
	URL  string
}

// KOL is one watched account handed to social strategies.
type KOL struct {
	Handle string
	Tier   int
}

// HealthGate is consulted before every upstream attempt and told about its
// outcome afterwards.
type HealthGate interface {
	IsUsable(source string) bool
	ReportOutcome(source string, outcome health.Outcome)
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Now       time.Time
	SiteName  string
	Family    string
	Endpoints []Endpoint
	KOLs      []KOL
	Options   map[string]string
	Gate      HealthGate
	// Pace blocks until the site's family may be contacted again.
	Pace func(ctx context.Context) error
}

// Usable reports whether the gate allows contacting source. A request with no
// gate treats every source as usable.
func (r Request) Usable(source string) bool {
	return r.Gate == nil || r.Gate.IsUsable(source)
}

// Report forwards an attempt outcome to the gate, if any.
func (r Request) Report(source string, outcome health.Outcome) {
	if r.Gate != nil {
		r.Gate.ReportOutcome(source, outcome)
	}
}

// Throttle waits for the family pacer, if any.
func (r Request) Throttle(ctx context.Context) error {
	if r.Pace == nil {
		return ctx.Err()
	}
	return r.Pace(ctx)
}

// Result is what a strategy gathered for one site.
type Result struct {
	Items     []domain.RawItem
	Queried   int
	Responded int
}

// Scanner captures a single strategy implementation (Nitter, RSS, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
