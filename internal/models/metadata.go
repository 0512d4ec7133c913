package models

import "strings"

// MetadataRecord is one entry of the source API's metadata listing.
type MetadataRecord struct {
	DatasetID         string  `json:"Dataset ID"`
	Name              string  `json:"Name"`
	Description       string  `json:"Description"`
	UpdateFrequency   string  `json:"Update Frequency"`
	StartRange        *string `json:"Start Range"`
	EndRange          *string `json:"End Range"`
	VisualizationLink *string `json:"Visualization Link"`
	LastUpdateDate    *string `json:"Last Update Date"`
	Tags              []Tag   `json:"Tags"`
	Themes            []Theme `json:"Themes"`
}

// Tag is a keyword attached to a source dataset.
type Tag struct {
	Tag string `json:"Tag"`
}

// Theme is a thematic category attached to a source dataset.
type Theme struct {
	Theme string `json:"Theme"`
}

// VisualizationURL returns the trimmed visualization link, or "" when absent.
func (m *MetadataRecord) VisualizationURL() string {
	return deref(m.VisualizationLink)
}

// StartRangeValue returns the declared coverage start, or "" when absent.
func (m *MetadataRecord) StartRangeValue() string {
	return deref(m.StartRange)
}

// EndRangeValue returns the declared coverage end, or "" when absent.
func (m *MetadataRecord) EndRangeValue() string {
	return deref(m.EndRange)
}

// LastUpdateValue returns the source update timestamp, or "" when absent.
func (m *MetadataRecord) LastUpdateValue() string {
	return deref(m.LastUpdateDate)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return strings.TrimSpace(*s)
}
