// Package models defines the records that flow through the connector.
package models

import (
	"fmt"
	"time"
)

// Update frequency tokens.
const (
	FrequencyAdhoc = "adhoc"
)

// Dataset is a catalog-ready package built from one source dataset.
type Dataset struct {
	SourceID        string     `json:"-" validate:"required"`
	Name            string     `json:"name" validate:"required,max=100"`
	Title           string     `json:"title" validate:"required"`
	Notes           string     `json:"notes"`
	Maintainer      string     `json:"maintainer" validate:"required"`
	OwnerOrg        string     `json:"owner_org" validate:"required"`
	UpdateFrequency string     `json:"data_update_frequency" validate:"required"`
	LicenseID       string     `json:"license_id,omitempty"`
	Methodology     string     `json:"methodology,omitempty"`
	DatasetSource   string     `json:"dataset_source,omitempty"`
	PackageCreator  string     `json:"package_creator,omitempty"`
	Caveats         string     `json:"caveats,omitempty"`
	UpdatedByScript string     `json:"updated_by_script,omitempty"`
	Batch           string     `json:"batch,omitempty"`
	Locations       []string   `json:"locations" validate:"min=1,dive,required"`
	Tags            []string   `json:"tags" validate:"min=1,dive,required"`
	Resources       []Resource `json:"resources" validate:"min=1,dive"`
	TimePeriod      TimePeriod `json:"dataset_date"`
	Subnational     bool       `json:"subnational"`
}

// Resource is a file attached to a dataset.
type Resource struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Format      string `json:"format" validate:"required"`
	Path        string `json:"-" validate:"required"`
	Hash        string `json:"hash,omitempty"`
	Rows        int    `json:"-"`
}

// Showcase links a dataset to an external visualization.
type Showcase struct {
	Name     string   `json:"name" validate:"required"`
	Title    string   `json:"title" validate:"required"`
	Notes    string   `json:"notes"`
	URL      string   `json:"url" validate:"required,url"`
	ImageURL string   `json:"image_url"`
	Tags     []string `json:"tags"`
}

// TimePeriod is the temporal coverage of a dataset.
type TimePeriod struct {
	Start   time.Time
	End     time.Time
	Ongoing bool
}

// HasEnd reports whether an end date is set.
func (p TimePeriod) HasEnd() bool {
	return !p.End.IsZero()
}

// String renders the period in the catalog's range syntax,
// e.g. "[1948-07-06T00:00:00 TO 2023-11-28T23:59:59]".
func (p TimePeriod) String() string {
	start := startOfDay(p.Start).Format("2006-01-02T15:04:05")
	if p.Ongoing || !p.HasEnd() {
		return fmt.Sprintf("[%s TO *]", start)
	}

	end := startOfDay(p.End).Add(24*time.Hour - time.Second).Format("2006-01-02T15:04:05")

	return fmt.Sprintf("[%s TO %s]", start, end)
}

// MarshalText implements encoding.TextMarshaler.
func (p TimePeriod) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
