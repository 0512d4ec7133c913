package normalizer

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"peacesecurity/internal/models"
)

// Validation errors.
var (
	ErrNilInput         = errors.New("input is nil")
	ErrMissingDatasetID = errors.New("missing dataset ID in metadata")
	ErrNoRows           = errors.New("dataset contains no rows")
	ErrEmptyFirstRow    = errors.New("first row has no columns")
)

// Validator checks shaper inputs and outputs.
type Validator struct {
	structs *validator.Validate
}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{
		structs: validator.New(),
	}
}

// ValidateInput checks that the raw input can be shaped.
func (v *Validator) ValidateInput(in *Input) error {
	if in == nil {
		return ErrNilInput
	}

	if in.Metadata.DatasetID == "" {
		return ErrMissingDatasetID
	}

	if len(in.Rows) == 0 {
		return ErrNoRows
	}

	if in.Rows[0].Len() == 0 {
		return ErrEmptyFirstRow
	}

	return nil
}

// ValidateDataset checks the struct constraints of a shaped dataset.
func (v *Validator) ValidateDataset(ds *models.Dataset) error {
	if err := v.structs.Struct(ds); err != nil {
		return fmt.Errorf("dataset %q: %w", ds.Name, err)
	}

	return nil
}

// ValidateShowcase checks the struct constraints of a showcase.
func (v *Validator) ValidateShowcase(sc *models.Showcase) error {
	if err := v.structs.Struct(sc); err != nil {
		return fmt.Errorf("showcase %q: %w", sc.Name, err)
	}

	return nil
}
