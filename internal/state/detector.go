package state

import (
	"sort"
	"time"

	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
	"peacesecurity/pkg/utils"
)

// Selection is a dataset chosen for refetch together with the update time
// its watermark advances to once it is published.
type Selection struct {
	UpdatedAt time.Time
	Metadata  models.MetadataRecord
	ID        string
}

// Detector picks the datasets that changed since the last run.
type Detector struct {
	now    func() time.Time
	logger *logger.Logger
}

// NewDetector creates a detector using the wall clock.
func NewDetector(log *logger.Logger) *Detector {
	return NewDetectorWithClock(log, time.Now)
}

// NewDetectorWithClock creates a detector with an injected clock.
func NewDetectorWithClock(log *logger.Logger, now func() time.Time) *Detector {
	return &Detector{now: now, logger: log}
}

// SelectChanged returns, sorted by identifier, the records whose update time
// is strictly after their watermark. A missing or unreadable update time
// counts as updated now. When only is non-empty, other identifiers are ignored.
// The watermarks are not modified.
func (d *Detector) SelectChanged(records []models.MetadataRecord, marks Watermarks, only []string) []Selection {
	allowed := make(map[string]bool, len(only))
	for _, id := range only {
		allowed[id] = true
	}

	var selected []Selection

	for _, record := range records {
		id := record.DatasetID
		if id == "" {
			continue
		}

		if len(allowed) > 0 && !allowed[id] {
			continue
		}

		updated := d.resolveUpdateTime(record)
		if !updated.After(marks.For(id)) {
			d.logger.Debug("dataset unchanged", "dataset", id, "updated", updated)

			continue
		}

		selected = append(selected, Selection{ID: id, UpdatedAt: updated, Metadata: record})
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })

	return selected
}

func (d *Detector) resolveUpdateTime(record models.MetadataRecord) time.Time {
	raw := record.LastUpdateValue()
	if raw == "" {
		return d.now().UTC()
	}

	t, err := utils.ParseDate(raw)
	if err != nil {
		d.logger.Warn("unreadable last update date, treating as just updated",
			"dataset", record.DatasetID, "value", raw, "error", err)

		return d.now().UTC()
	}

	return t
}
