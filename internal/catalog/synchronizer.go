package catalog

import (
	"context"
	"errors"
	"fmt"

	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
	"peacesecurity/pkg/checksum"
)

// Synchronizer errors.
var (
	ErrPublishFailed = errors.New("could not upload")
	ErrRetireFailed  = errors.New("could not archive")
	ErrSearchFailed  = errors.New("could not search catalog")
)

// Synchronizer reconciles the catalog with the datasets the source publishes.
type Synchronizer struct {
	client Client
	cfg    *config.CatalogConfig
	logger *logger.Logger
}

// NewSynchronizer creates a synchronizer over a catalog client.
func NewSynchronizer(client Client, cfg *config.CatalogConfig, log *logger.Logger) *Synchronizer {
	return &Synchronizer{
		client: client,
		cfg:    cfg,
		logger: log,
	}
}

// FlagInactive returns the organization's records whose name is not in
// known and that are not already inactive, with the inactive flag set.
func (s *Synchronizer) FlagInactive(ctx context.Context, known map[string]bool) ([]Record, error) {
	records, err := s.client.Search(ctx, "organization:"+s.cfg.Organization)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	var flagged []Record

	for _, rec := range records {
		if known[rec.Name] || s.isInactive(rec) {
			continue
		}

		if s.cfg.InactivePolicy == config.PolicyPrivate {
			rec.Private = true
		} else {
			rec.Archived = true
		}

		flagged = append(flagged, rec)
	}

	return flagged, nil
}

// Retire patches each flagged record. A failed patch is recorded and the
// remaining records are still processed.
func (s *Synchronizer) Retire(ctx context.Context, records []Record, batch string) *RetireResult {
	result := &RetireResult{}

	for _, rec := range records {
		fields := map[string]any{
			"updated_by_script": s.cfg.UpdatedByScript,
			"batch":             batch,
		}

		if rec.Private {
			fields["private"] = true
		}

		if rec.Archived {
			fields["archived"] = true
		}

		err := s.client.Patch(ctx, PatchRequest{ID: rec.ID, Name: rec.Name, Fields: fields})
		if err != nil {
			s.logger.Error("Failed to retire dataset", "dataset", rec.Name, "error", err)
			result.Failed = append(result.Failed, rec.Name)
			result.Errors = append(result.Errors, fmt.Errorf("%w %s: %w", ErrRetireFailed, rec.Name, err))

			continue
		}

		s.logger.Info("Retired dataset", "dataset", rec.Name, "policy", s.cfg.InactivePolicy)
		result.Retired = append(result.Retired, rec.Name)
	}

	return result
}

// Publish upserts a dataset and, when showcases are enabled, its showcase.
func (s *Synchronizer) Publish(ctx context.Context, dataset *models.Dataset, showcase *models.Showcase) (*PublishResult, error) {
	for _, res := range dataset.Resources {
		if res.Hash == "" {
			continue
		}

		if _, err := checksum.Verify(res.Path, res.Hash); err != nil {
			return nil, fmt.Errorf("%w %s: resource %s: %w", ErrPublishFailed, dataset.SourceID, res.Name, err)
		}
	}

	if !s.cfg.PublishShowcases {
		showcase = nil
	}

	result, err := s.client.Create(ctx, dataset, showcase)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrPublishFailed, dataset.SourceID, err)
	}

	s.logger.Info("Published dataset",
		"dataset", dataset.Name,
		"created", result.Created,
		"uploaded", len(result.ResourcesUploaded),
		"skipped", len(result.ResourcesSkipped),
	)

	return result, nil
}

func (s *Synchronizer) isInactive(rec Record) bool {
	if s.cfg.InactivePolicy == config.PolicyPrivate {
		return rec.Private
	}

	return rec.Archived
}
