// Package normalizer shapes source metadata and rows into catalog-ready datasets.
package normalizer

import (
	"errors"
	"fmt"

	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
)

// ErrShapingFailed wraps every reason a dataset could not be shaped.
var ErrShapingFailed = errors.New("could not shape dataset")

// Input is the raw material for one dataset.
type Input struct {
	Metadata models.MetadataRecord
	Rows     []models.Row
}

// Result is a shaped dataset and its optional showcase.
type Result struct {
	Dataset  *models.Dataset
	Showcase *models.Showcase
}

// Processor handles validation and transformation of one dataset.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	logger      *logger.Logger
}

// NewProcessor creates a processor writing resource files under workDir.
func NewProcessor(cfg *config.Config, workDir string, log *logger.Logger) *Processor {
	return &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(&cfg.Dataset, &cfg.Catalog, workDir),
		logger:      log,
	}
}

// Process validates the input, builds the dataset and validates the result.
// Rows are rewritten in place.
func (p *Processor) Process(in *Input, batch string) (*Result, error) {
	// 1. Validate the input data
	if err := p.validator.ValidateInput(in); err != nil {
		return nil, fmt.Errorf("%w: validation failed: %w", ErrShapingFailed, err)
	}

	// 2. Transform the data
	result, err := p.transformer.Transform(in, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: transformation failed: %w", ErrShapingFailed, err)
	}

	// 3. Validate the output
	if err := p.validator.ValidateDataset(result.Dataset); err != nil {
		return nil, fmt.Errorf("%w: invalid dataset: %w", ErrShapingFailed, err)
	}

	if result.Showcase != nil {
		if err := p.validator.ValidateShowcase(result.Showcase); err != nil {
			p.logger.Warn("Dropping invalid showcase",
				"dataset", in.Metadata.DatasetID,
				"url", result.Showcase.URL,
				"error", err,
			)

			result.Showcase = nil
		}
	}

	return result, nil
}
