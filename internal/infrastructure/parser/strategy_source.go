package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
	"MorningPulse/internal/scanner"
)

// StrategySource implements ItemSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sites       []config.SiteConfig
	kols        []scanner.KOL
	gate        scanner.HealthGate
	pacers      map[string]*pacer
	concurrency int
	logger      *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// SourceOptions groups the collaborators shared by all sites.
type SourceOptions struct {
	KOLs        []config.KOLConfig
	Gate        scanner.HealthGate
	FamilyDelay time.Duration
	Concurrency int
	Logger      *slog.Logger
}

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, opts SourceOptions) *StrategySource {
	pacers := map[string]*pacer{}
	for _, site := range sites {
		family := familyOf(site)
		if _, ok := pacers[family]; !ok {
			pacers[family] = newPacer(opts.FamilyDelay)
		}
	}

	kols := make([]scanner.KOL, 0, len(opts.KOLs))
	for _, k := range opts.KOLs {
		kols = append(kols, scanner.KOL{Handle: k.Handle, Tier: k.Tier})
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	return &StrategySource{
		registry:    reg,
		sites:       sites,
		kols:        kols,
		gate:        opts.Gate,
		pacers:      pacers,
		concurrency: concurrency,
		logger:      opts.Logger,
	}
}

// Collect runs every configured site concurrently. A failing site lowers
// the responded counter but never aborts the run.
func (s *StrategySource) Collect(ctx context.Context, now time.Time) (domain.Batch, error) {
	if s.registry == nil {
		return domain.Batch{}, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("collect", "sites", len(s.sites), "at", now.Format(time.RFC3339))

	type job struct {
		site     config.SiteConfig
		strategy scanner.Scanner
	}
	jobs := make([]job, 0, len(s.sites))
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return domain.Batch{}, fmt.Errorf("site %s: %w", site.Name, err)
		}
		jobs = append(jobs, job{site: site, strategy: strategy})
	}

	var (
		mu    sync.Mutex
		batch domain.Batch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			s.debug("process site", "site", j.site.Name, "scanner", j.site.Scanner, "endpoints", len(j.site.Endpoints))
			result, err := j.strategy.Scan(gctx, s.request(j.site, now))
			if err != nil {
				s.warn("scan site failed", "site", j.site.Name, "error", err)
			}

			for i := range result.Items {
				if result.Items[i].SourceName == "" {
					result.Items[i].SourceName = j.site.Name
				}
			}

			mu.Lock()
			batch.Items = append(batch.Items, result.Items...)
			batch.SourcesQueried += result.Queried
			batch.SourcesResponded += result.Responded
			mu.Unlock()

			s.debug("site produced items", "site", j.site.Name, "count", len(result.Items),
				"queried", result.Queried, "responded", result.Responded)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batch, err
	}
	if err := ctx.Err(); err != nil {
		return batch, err
	}

	s.debug("strategy source done", "total_items", len(batch.Items))
	return batch, nil
}

func (s *StrategySource) request(site config.SiteConfig, now time.Time) scanner.Request {
	req := scanner.Request{
		Now:       now,
		SiteName:  site.Name,
		Family:    familyOf(site),
		Endpoints: toScannerEndpoints(site.Endpoints),
		KOLs:      s.kols,
		Options:   site.Options,
		Gate:      s.gate,
	}
	if p, ok := s.pacers[req.Family]; ok {
		req.Pace = p.Wait
	}
	return req
}

func familyOf(site config.SiteConfig) string {
	if site.Family != "" {
		return site.Family
	}
	return site.Name
}

func toScannerEndpoints(cfg []config.EndpointConfig) []scanner.Endpoint {
	endpoints := make([]scanner.Endpoint, 0, len(cfg))
	for _, ep := range cfg {
		name := ep.Name
		if name == "" {
			name = ep.URL
		}
		endpoints = append(endpoints, scanner.Endpoint{Name: name, URL: ep.URL})
	}
	return endpoints
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
