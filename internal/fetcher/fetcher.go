// Package fetcher orchestrates fetch cycles: for every catalog entity it
// pulls provider data, normalizes it into the canonical metric set and
// appends a snapshot with its metric rows to the store.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"defi-parity/internal/alert"
	"defi-parity/internal/catalog"
	"defi-parity/internal/domain"
	"defi-parity/internal/normalize"
	"defi-parity/internal/observability"
	"defi-parity/internal/provider"
	"defi-parity/internal/retry"
	"defi-parity/internal/storage"
)

// DefaultEntityDelay is the pause between consecutive entity fetches,
// keeping free-tier upstreams comfortable.
const DefaultEntityDelay = 500 * time.Millisecond

// Source tags recorded on snapshots for provenance.
const (
	SourceTradFi = "fmp"
	SourceDeFi   = "coingecko+defillama"
)

// Providers bundles the upstream clients a cycle needs.
type Providers struct {
	TradFi provider.TradFiClient
	Token  provider.TokenClient
	Fees   provider.FeesClient
}

// Options configures a Runner.
type Options struct {
	Catalog    storage.CatalogStore
	Snapshots  storage.SnapshotStore
	Providers  Providers
	Normalizer *normalize.Normalizer
	Retry      retry.Policy
	Alerter    alert.Notifier

	// EntityDelay is the pause between entities; zero means the default.
	EntityDelay time.Duration

	// DryRun fetches and normalizes but skips every store write.
	DryRun bool

	// CapturedAt overrides the snapshot timestamp, for backfills. Zero
	// means time.Now per cycle.
	CapturedAt time.Time

	Logger *logrus.Logger
}

// EntityFailure records why one entity produced no snapshot metrics.
type EntityFailure struct {
	EntityID string
	Name     string
	Err      error
}

// CycleResult summarizes one fetch cycle.
type CycleResult struct {
	Succeeded  int
	Failed     int
	Duration   time.Duration
	CapturedAt time.Time
	Failures   []EntityFailure
}

// Runner executes fetch cycles over the static catalog.
type Runner struct {
	opts  Options
	delay time.Duration
}

// New creates a Runner. The catalog store, snapshot store, providers and
// normalizer are required.
func New(opts Options) (*Runner, error) {
	if opts.Catalog == nil || opts.Snapshots == nil || opts.Normalizer == nil {
		return nil, errors.New("fetcher: catalog store, snapshot store and normalizer are required")
	}
	if opts.Providers.TradFi == nil || opts.Providers.Token == nil || opts.Providers.Fees == nil {
		return nil, errors.New("fetcher: all three provider clients are required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	delay := opts.EntityDelay
	if delay <= 0 {
		delay = DefaultEntityDelay
	}
	return &Runner{opts: opts, delay: delay}, nil
}

// Run executes one full fetch cycle: catalog sync, then every entity in
// catalog order. Per-entity failures are collected, never abort the batch.
// The context deadline bounds the whole cycle.
func (r *Runner) Run(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	capturedAt := r.opts.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = start.UTC()
	}

	log := r.opts.Logger.WithFields(logrus.Fields{
		"captured_at": capturedAt.Format(time.RFC3339),
		"dry_run":     r.opts.DryRun,
	})
	log.Info("fetch cycle started")

	if !r.opts.DryRun {
		if err := r.syncCatalog(ctx); err != nil {
			return nil, fmt.Errorf("sync catalog: %w", err)
		}
	}

	result := &CycleResult{CapturedAt: capturedAt}
	entities := catalog.Entities()
	for i, entity := range entities {
		if err := ctx.Err(); err != nil {
			// Deadline hit mid-cycle: report what we have plus the
			// entities we never reached.
			for _, rest := range entities[i:] {
				result.Failed++
				result.Failures = append(result.Failures, EntityFailure{
					EntityID: rest.ID, Name: rest.Name, Err: err,
				})
			}
			break
		}

		if err := r.fetchEntity(ctx, entity, capturedAt); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, EntityFailure{
				EntityID: entity.ID, Name: entity.Name, Err: err,
			})
			r.opts.Logger.WithFields(logrus.Fields{
				"entity": entity.ID,
				"error":  err,
			}).Warn("entity fetch failed")
		} else {
			result.Succeeded++
		}

		if i < len(entities)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(r.delay):
			}
		}
	}

	result.Duration = time.Since(start)

	status := "success"
	if result.Failed > 0 {
		status = "partial"
		if result.Succeeded == 0 {
			status = "failure"
		}
	}
	observability.RecordCycle(status, result.Duration)

	r.notifyFailures(ctx, result)

	log.WithFields(logrus.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"duration":  result.Duration.Round(time.Millisecond).String(),
	}).Info("fetch cycle finished")
	return result, nil
}

// syncCatalog upserts all static entities and pairs so foreign keys hold
// before any snapshot insert.
func (r *Runner) syncCatalog(ctx context.Context) error {
	for _, e := range catalog.Entities() {
		entity := e
		if err := r.opts.Catalog.UpsertEntity(ctx, &entity); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ID, err)
		}
	}
	for _, p := range catalog.Pairs() {
		record := p.Record()
		if err := r.opts.Catalog.UpsertPair(ctx, &record); err != nil {
			return fmt.Errorf("upsert pair %d: %w", p.ID, err)
		}
	}
	return nil
}

func (r *Runner) fetchEntity(ctx context.Context, entity domain.Entity, capturedAt time.Time) error {
	switch entity.Type {
	case domain.EntityTypeTradFi:
		return r.fetchTradFi(ctx, entity, capturedAt)
	case domain.EntityTypeDeFi:
		return r.fetchDeFi(ctx, entity, capturedAt)
	default:
		return fmt.Errorf("unknown entity type %q", entity.Type)
	}
}

func (r *Runner) fetchTradFi(ctx context.Context, entity domain.Entity, capturedAt time.Time) error {
	if entity.Ticker == "" {
		observability.RecordEntityFetch(SourceTradFi, "skipped")
		return normalize.ErrNoTicker
	}

	started := time.Now()
	data, err := r.opts.Providers.TradFi.Fundamentals(ctx, entity.Ticker)
	observability.RecordProviderRequest(SourceTradFi, time.Since(started).Seconds(), err)
	if err != nil {
		observability.RecordEntityFetch(SourceTradFi, "error")
		return fmt.Errorf("fmp fundamentals for %s: %w", entity.Ticker, err)
	}

	metrics, err := r.opts.Normalizer.TradFi(data)
	if err != nil {
		observability.RecordEntityFetch(SourceTradFi, "error")
		return fmt.Errorf("normalize %s: %w", entity.ID, err)
	}

	if err := r.persist(ctx, entity.ID, capturedAt, SourceTradFi, metrics); err != nil {
		observability.RecordEntityFetch(SourceTradFi, "error")
		return err
	}
	observability.RecordEntityFetch(SourceTradFi, "success")
	return nil
}

func (r *Runner) fetchDeFi(ctx context.Context, entity domain.Entity, capturedAt time.Time) error {
	if entity.CoinGeckoID == "" && entity.DefiLlamaID == "" {
		observability.RecordEntityFetch(SourceDeFi, "skipped")
		return normalize.ErrNoIdentifier
	}

	// Both upstreams run in parallel. Either side may fail on its own;
	// the normalizer only errors when neither returned anything.
	var (
		token    *provider.TokenValuation
		fees     *provider.ProtocolFees
		tokenErr error
		feesErr  error
	)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if entity.CoinGeckoID != "" {
		g.Go(func() error {
			token, tokenErr = r.opts.Providers.Token.TokenValuation(gctx, entity.CoinGeckoID)
			return nil
		})
	}
	if entity.DefiLlamaID != "" {
		g.Go(func() error {
			fees, feesErr = r.opts.Providers.Fees.ProtocolFees(gctx, entity.DefiLlamaID)
			return nil
		})
	}
	_ = g.Wait()
	observability.RecordProviderRequest(SourceDeFi, time.Since(started).Seconds(), errors.Join(tokenErr, feesErr))

	if tokenErr != nil {
		r.opts.Logger.WithFields(logrus.Fields{
			"entity": entity.ID,
			"error":  tokenErr,
		}).Warn("coingecko fetch failed, continuing with fees only")
		token = nil
	}
	if feesErr != nil {
		r.opts.Logger.WithFields(logrus.Fields{
			"entity": entity.ID,
			"error":  feesErr,
		}).Warn("defillama fetch failed, continuing with token only")
		fees = nil
	}

	metrics, err := r.opts.Normalizer.DeFi(entity.ID, token, fees)
	if err != nil {
		observability.RecordEntityFetch(SourceDeFi, "error")
		return fmt.Errorf("normalize %s: %w", entity.ID, errors.Join(err, tokenErr, feesErr))
	}

	if err := r.persist(ctx, entity.ID, capturedAt, SourceDeFi, metrics); err != nil {
		observability.RecordEntityFetch(SourceDeFi, "error")
		return err
	}
	observability.RecordEntityFetch(SourceDeFi, "success")
	return nil
}

// persist writes the snapshot first, then its metric rows, each under the
// retry policy. Metrics always reference an existing snapshot row.
func (r *Runner) persist(ctx context.Context, entityID string, capturedAt time.Time, source string, metrics domain.MetricSet) error {
	if r.opts.DryRun {
		r.opts.Logger.WithFields(logrus.Fields{
			"entity": entityID,
			"source": source,
		}).Info("dry run, skipping store writes")
		return nil
	}

	raw, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal raw metrics: %w", err)
	}

	// Count only retries that actually happen, not the final failure.
	policy := r.opts.Retry
	policy.OnRetry = func(error) { observability.RecordStoreRetry() }

	var snapshotID string
	err = policy.Do(ctx, func(ctx context.Context) error {
		var insertErr error
		snapshotID, insertErr = r.opts.Snapshots.InsertSnapshot(ctx, entityID, capturedAt, source, string(raw))
		return insertErr
	})
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", entityID, err)
	}

	values := metrics.Values()
	err = policy.Do(ctx, func(ctx context.Context) error {
		insertErr := r.opts.Snapshots.InsertMetrics(ctx, snapshotID, values)
		if errors.Is(insertErr, storage.ErrDuplicateKey) {
			// A retried batch that partially landed; the snapshot is
			// already populated.
			return nil
		}
		return insertErr
	})
	if err != nil {
		return fmt.Errorf("insert metrics for %s: %w", entityID, err)
	}

	observability.RecordSnapshotWritten(len(values))
	return nil
}

func (r *Runner) notifyFailures(ctx context.Context, result *CycleResult) {
	if r.opts.Alerter == nil || len(result.Failures) == 0 {
		return
	}

	failures := make([]alert.Failure, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, alert.Failure{Name: f.Name, Reason: f.Err.Error()})
	}
	if err := r.opts.Alerter.NotifyFailures(ctx, failures); err != nil {
		r.opts.Logger.WithError(err).Warn("alert delivery failed")
	}
}
