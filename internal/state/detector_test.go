package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	return NewDetectorWithClock(logger.Discard(), func() time.Time { return fixedNow })
}

func record(id, lastUpdate string) models.MetadataRecord {
	r := models.MetadataRecord{DatasetID: id}
	if lastUpdate != "" {
		r.LastUpdateDate = &lastUpdate
	}

	return r
}

func ids(selected []Selection) []string {
	out := make([]string, 0, len(selected))
	for _, s := range selected {
		out = append(out, s.ID)
	}

	return out
}

func TestSelectChanged_FirstRunSelectsEverything(t *testing.T) {
	marks := Watermarks{DefaultKey: date(2023, 1, 1)}
	records := []models.MetadataRecord{
		record("DPPADPOSS-PKO", "2024-05-01"),
		record("DPPADPOSS-FATALITIES", "2023-11-28"),
	}

	selected := newTestDetector().SelectChanged(records, marks, nil)

	assert.Equal(t, []string{"DPPADPOSS-FATALITIES", "DPPADPOSS-PKO"}, ids(selected))
	assert.Equal(t, date(2023, 11, 28), selected[0].UpdatedAt)
}

func TestSelectChanged_StrictlyGreater(t *testing.T) {
	marks := Watermarks{
		DefaultKey: date(2023, 1, 1),
		"EQUAL":    date(2024, 1, 1),
		"OLDER":    date(2024, 6, 1),
		"NEWER":    date(2023, 12, 31),
	}
	records := []models.MetadataRecord{
		record("EQUAL", "2024-01-01"),
		record("OLDER", "2024-01-01"),
		record("NEWER", "2024-01-01"),
	}

	selected := newTestDetector().SelectChanged(records, marks, nil)

	assert.Equal(t, []string{"NEWER"}, ids(selected))
}

func TestSelectChanged_MissingUpdateIsNow(t *testing.T) {
	marks := Watermarks{DefaultKey: date(2023, 1, 1), "A": date(2025, 1, 1)}

	selected := newTestDetector().SelectChanged([]models.MetadataRecord{record("A", "")}, marks, nil)

	require.Len(t, selected, 1)
	assert.Equal(t, fixedNow, selected[0].UpdatedAt)
}

func TestSelectChanged_UnreadableUpdateIsNow(t *testing.T) {
	marks := Watermarks{DefaultKey: date(2023, 1, 1)}

	selected := newTestDetector().SelectChanged([]models.MetadataRecord{record("A", "last tuesday")}, marks, nil)

	require.Len(t, selected, 1)
	assert.Equal(t, fixedNow, selected[0].UpdatedAt)
}

func TestSelectChanged_OnlyFilter(t *testing.T) {
	marks := Watermarks{DefaultKey: date(2023, 1, 1)}
	records := []models.MetadataRecord{record("A", "2024-01-01"), record("B", "2024-01-01"), record("", "2024-01-01")}

	selected := newTestDetector().SelectChanged(records, marks, []string{"B"})

	assert.Equal(t, []string{"B"}, ids(selected))
}

func TestSelectChanged_DoesNotMutateWatermarks(t *testing.T) {
	marks := Watermarks{DefaultKey: date(2023, 1, 1)}

	newTestDetector().SelectChanged([]models.MetadataRecord{record("A", "2024-01-01")}, marks, nil)

	assert.Len(t, marks, 1)
}
