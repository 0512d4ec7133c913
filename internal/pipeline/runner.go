// Package pipeline runs one end-to-end synchronisation of the source with the catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"peacesecurity/internal/catalog"
	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
	"peacesecurity/internal/normalizer"
	"peacesecurity/internal/report"
	"peacesecurity/internal/state"
	"peacesecurity/pkg/utils"
)

// Run errors that abort the whole run.
var (
	ErrLoadState     = errors.New("could not load state")
	ErrSaveState     = errors.New("could not save state")
	ErrFetchMetadata = errors.New("could not fetch metadata")
)

// Error categories used in the run report.
const (
	CategorySource  = "PeaceSecurity"
	CategoryCatalog = "Catalog"
)

// Source is where metadata and rows come from.
type Source interface {
	FetchMetadata(ctx context.Context) ([]models.MetadataRecord, error)
	FetchRows(ctx context.Context, datasetID string) ([]models.Row, error)
}

// Options tune a single run.
type Options struct {
	ErrorsPath string
	Datasets   []string
	DryRun     bool
}

// Runner wires the source, state store, shaper and catalog together.
type Runner struct {
	cfg      *config.Config
	source   Source
	store    *state.Store
	detector *state.Detector
	sync     *catalog.Synchronizer
	logger   *logger.Logger
	now      func() time.Time
	newBatch func() string
}

// NewRunner creates a runner.
func NewRunner(cfg *config.Config, src Source, client catalog.Client, store *state.Store, log *logger.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		source:   src,
		store:    store,
		detector: state.NewDetector(log),
		sync:     catalog.NewSynchronizer(client, &cfg.Catalog, log),
		logger:   log,
		now:      time.Now,
		newBatch: uuid.NewString,
	}
}

type fetched struct {
	selection state.Selection
	rows      []models.Row
}

// Run performs one synchronisation. Per-dataset failures are recorded in
// the returned report; only state, metadata and context failures return an error.
func (r *Runner) Run(ctx context.Context, opts Options) (*report.RunReport, error) {
	rep := report.NewRunReport(r.newBatch(), r.now())
	rep.DryRun = opts.DryRun
	log := r.logger.With("batch", rep.Batch)

	log.Info("Starting peace and security run",
		"source", r.cfg.Source.BaseURL,
		"catalog", r.cfg.Catalog.URL,
		"dry_run", opts.DryRun,
	)

	// Phase 1: state
	marks, err := r.store.Load()
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrLoadState, err)
	}

	// Phase 2: metadata and selection
	metadata, err := r.source.FetchMetadata(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrFetchMetadata, err)
	}

	known := r.knownNames(metadata)
	selections := r.detector.SelectChanged(metadata, marks, opts.Datasets)
	rep.Selected = len(selections)

	log.Info("Selected datasets", "metadata", len(metadata), "selected", len(selections))

	// Phase 3: rows
	batch := r.fetchRows(ctx, log, selections, rep)

	// Phase 4: inactive datasets
	r.retireInactive(ctx, log, known, rep, opts.DryRun)

	// Phase 5: shape and publish
	workDir, cleanup, err := r.workDir()
	if err != nil {
		return rep, err
	}
	defer cleanup()

	processor := normalizer.NewProcessor(r.cfg, workDir, log)

	for _, item := range batch {
		if ctx.Err() != nil {
			break
		}

		if r.publish(ctx, log, processor, item, rep, opts.DryRun) {
			marks.Advance(item.selection.ID, item.selection.UpdatedAt)
		}
	}

	// Phase 6: persist
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("Run cancelled, state not saved", "error", ctxErr)

		return r.finish(log, rep, opts), ctxErr
	}

	if opts.DryRun {
		log.Info("Dry run, state not saved", "state", r.store.Path())
	} else if err := r.store.Save(marks); err != nil {
		return r.finish(log, rep, opts), fmt.Errorf("%w: %w", ErrSaveState, err)
	}

	return r.finish(log, rep, opts), nil
}

// knownNames returns the catalog name of every dataset the source lists.
func (r *Runner) knownNames(metadata []models.MetadataRecord) map[string]bool {
	known := make(map[string]bool, len(metadata))

	for _, m := range metadata {
		if m.DatasetID == "" {
			continue
		}

		known[utils.Slugify(r.cfg.Dataset.CatalogName(m.DatasetID))] = true
	}

	return known
}

func (r *Runner) fetchRows(ctx context.Context, log *logger.Logger, selections []state.Selection, rep *report.RunReport) []fetched {
	batch := make([]fetched, 0, len(selections))

	for _, sel := range selections {
		if ctx.Err() != nil {
			break
		}

		rows, err := r.source.FetchRows(ctx, sel.ID)
		if err != nil {
			log.Error("Failed to fetch rows", "dataset", sel.ID, "error", err)
			rep.Errors.AddError(CategorySource, sel.ID, err)
			rep.Skipped++

			continue
		}

		rep.Fetched++
		batch = append(batch, fetched{selection: sel, rows: rows})
	}

	return batch
}

func (r *Runner) retireInactive(ctx context.Context, log *logger.Logger, known map[string]bool, rep *report.RunReport, dryRun bool) {
	if ctx.Err() != nil {
		return
	}

	flagged, err := r.sync.FlagInactive(ctx, known)
	if err != nil {
		log.Error("Failed to list catalog datasets", "error", err)
		rep.Errors.AddError(CategoryCatalog, r.cfg.Catalog.Organization, err)

		return
	}

	if len(flagged) == 0 {
		return
	}

	if dryRun {
		for _, rec := range flagged {
			log.Info("Would retire dataset", "dataset", rec.Name, "policy", r.cfg.Catalog.InactivePolicy)
		}

		return
	}

	result := r.sync.Retire(ctx, flagged, rep.Batch)
	rep.Retired = len(result.Retired)

	for i, err := range result.Errors {
		rep.Errors.AddError(CategoryCatalog, result.Failed[i], err)
	}
}

func (r *Runner) publish(ctx context.Context, log *logger.Logger, processor *normalizer.Processor, item fetched, rep *report.RunReport, dryRun bool) bool {
	id := item.selection.ID

	result, err := processor.Process(&normalizer.Input{
		Metadata: item.selection.Metadata,
		Rows:     item.rows,
	}, rep.Batch)
	if err != nil {
		log.Error("Failed to shape dataset", "dataset", id, "error", err)
		rep.Errors.AddError(CategorySource, id, err)
		rep.Skipped++

		return false
	}

	if dryRun {
		log.Info("Would publish dataset",
			"dataset", result.Dataset.Name,
			"title", result.Dataset.Title,
			"period", result.Dataset.TimePeriod.String(),
			"showcase", result.Showcase != nil,
		)

		return false
	}

	if _, err := r.sync.Publish(ctx, result.Dataset, result.Showcase); err != nil {
		log.Error("Failed to publish dataset", "dataset", id, "error", err)
		rep.Errors.AddError(CategoryCatalog, id, err)
		rep.Skipped++

		return false
	}

	rep.Published++

	return true
}

func (r *Runner) workDir() (string, func(), error) {
	if r.cfg.Run.WorkDir != "" {
		if err := os.MkdirAll(r.cfg.Run.WorkDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create work dir: %w", err)
		}

		return r.cfg.Run.WorkDir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "peacesecurity-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return dir, func() { os.RemoveAll(dir) }, nil
}

func (r *Runner) finish(log *logger.Logger, rep *report.RunReport, opts Options) *report.RunReport {
	rep.FinishedAt = r.now()

	errorsPath := opts.ErrorsPath
	if errorsPath == "" {
		errorsPath = r.cfg.Run.ErrorsPath
	}

	if err := rep.WriteErrors(errorsPath); err != nil {
		log.Error("Failed to write errors file", "path", errorsPath, "error", err)
	}

	for _, line := range rep.SummaryTable() {
		log.Info(line)
	}

	if err := rep.Errors.Err(); err != nil {
		log.Warn("Run finished with failures", "failed", rep.Failed(), "error", err)
	}

	return rep
}
