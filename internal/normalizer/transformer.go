package normalizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"peacesecurity/internal/config"
	"peacesecurity/internal/models"
	"peacesecurity/pkg/checksum"
	"peacesecurity/pkg/utils"
)

// ErrMissingStartDate is returned when neither the rows nor the metadata give a start date.
var ErrMissingStartDate = errors.New("start date missing")

// Words kept lower-case in titles.
var titleStopWords = map[string]bool{
	"and": true,
	"by":  true,
	"in":  true,
	"for": true,
	"of":  true,
	"the": true,
	"to":  true,
}

// Epoch values with more digits than this are milliseconds.
const maxSecondsDigits = 9

const csvFormat = "csv"

// Transformer builds datasets, resource files and showcases.
type Transformer struct {
	dataset *config.DatasetConfig
	catalog *config.CatalogConfig
	strings *utils.StringHelper
	workDir string
}

// NewTransformer creates a new transformer instance.
func NewTransformer(dataset *config.DatasetConfig, catalog *config.CatalogConfig, workDir string) *Transformer {
	return &Transformer{
		dataset: dataset,
		catalog: catalog,
		strings: utils.NewStringHelper(),
		workDir: workDir,
	}
}

// Transform converts one dataset's metadata and rows into a catalog dataset.
func (t *Transformer) Transform(in *Input, batch string) (*Result, error) {
	meta := &in.Metadata
	sourceID := meta.DatasetID

	period, err := t.resolvePeriod(meta, in.Rows)
	if err != nil {
		return nil, err
	}

	tags := t.Tags(meta)

	resource, err := t.writeResource(sourceID, in.Rows)
	if err != nil {
		return nil, err
	}

	ds := &models.Dataset{
		SourceID:        sourceID,
		Name:            utils.Slugify(t.dataset.CatalogName(sourceID)),
		Title:           t.Title(meta.Name),
		Notes:           MarkdownNotes(meta.Description),
		Maintainer:      t.catalog.Maintainer,
		OwnerOrg:        t.catalog.OwnerOrg,
		UpdateFrequency: Frequency(meta.UpdateFrequency),
		LicenseID:       t.dataset.Static.LicenseID,
		Methodology:     t.dataset.Static.Methodology,
		DatasetSource:   t.dataset.Static.DatasetSource,
		PackageCreator:  t.dataset.Static.PackageCreator,
		Caveats:         t.dataset.Static.Caveats,
		UpdatedByScript: t.catalog.UpdatedByScript,
		Batch:           batch,
		Locations:       []string{t.dataset.Location},
		Tags:            tags,
		Resources:       []models.Resource{*resource},
		TimePeriod:      period,
		Subnational:     false,
	}

	return &Result{
		Dataset:  ds,
		Showcase: t.showcase(meta, ds.Title, tags),
	}, nil
}

// Title prefixes name and title-cases each word, leaving stop words and
// words with more than one capital letter untouched.
func (t *Transformer) Title(name string) string {
	words := strings.Split(t.dataset.TitlePrefix+name, " ")

	for i, word := range words {
		if utils.CountUpper(word) > 1 || titleStopWords[word] {
			continue
		}

		words[i] = utils.TitleCaseWord(word)
	}

	return strings.Join(words, " ")
}

// Frequency normalises the source update frequency label.
func Frequency(label string) string {
	if strings.EqualFold(strings.TrimSpace(label), "ad hoc") {
		return models.FrequencyAdhoc
	}

	return label
}

// MarkdownNotes turns single newlines into markdown line breaks.
func MarkdownNotes(description string) string {
	return strings.ReplaceAll(description, "\n", "  \n")
}

// Tags merges base tags, metadata tags and themes, keeping allowed ones in sorted order.
func (t *Transformer) Tags(meta *models.MetadataRecord) []string {
	candidates := make([]string, 0, len(t.dataset.BaseTags)+len(meta.Tags)+len(meta.Themes))
	candidates = append(candidates, t.dataset.BaseTags...)

	for _, tag := range meta.Tags {
		candidates = append(candidates, tag.Tag)
	}

	for _, theme := range meta.Themes {
		candidates = append(candidates, theme.Theme)
	}

	seen := make(map[string]bool, len(candidates))
	tags := make([]string, 0, len(candidates))

	for _, c := range candidates {
		tag := strings.ToLower(t.strings.TrimWhitespace(c))
		if tag == "" || seen[tag] || !t.dataset.IsTagAllowed(tag) {
			continue
		}

		seen[tag] = true
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// DateColumns returns the columns of the first row whose name contains
// "date" and whose value is an integer.
func DateColumns(first models.Row) []string {
	var cols []string

	for _, key := range first.Keys() {
		if !strings.Contains(strings.ToLower(key), "date") {
			continue
		}

		v, _ := first.Get(key)
		if _, ok := models.AsInt64(v); ok {
			cols = append(cols, key)
		}
	}

	return cols
}

// EpochToTime converts an epoch value to UTC. Values with more than nine
// characters in their decimal form are read as milliseconds.
func EpochToTime(epoch int64) time.Time {
	if len(strconv.FormatInt(epoch, 10)) > maxSecondsDigits {
		return time.UnixMilli(epoch).UTC()
	}

	return time.Unix(epoch, 0).UTC()
}

// RewriteDates replaces epoch values in the date columns with YYYY-MM-DD
// strings and returns the converted times. Zero, null and non-integer
// values are left untouched.
func RewriteDates(rows []models.Row, columns []string) []time.Time {
	var dates []time.Time

	for i := range rows {
		for _, col := range columns {
			v, ok := rows[i].Get(col)
			if !ok {
				continue
			}

			epoch, isInt := models.AsInt64(v)
			if !isInt || epoch == 0 {
				continue
			}

			date := EpochToTime(epoch)
			dates = append(dates, date)
			rows[i].Set(col, utils.FormatDate(date))
		}
	}

	return dates
}

func (t *Transformer) resolvePeriod(meta *models.MetadataRecord, rows []models.Row) (models.TimePeriod, error) {
	dates := RewriteDates(rows, DateColumns(rows[0]))

	if len(dates) > 0 {
		start, end := dates[0], dates[0]

		for _, d := range dates[1:] {
			if d.Before(start) {
				start = d
			}

			if d.After(end) {
				end = d
			}
		}

		return models.TimePeriod{Start: start, End: end}, nil
	}

	startValue := meta.StartRangeValue()
	if startValue == "" {
		return models.TimePeriod{}, ErrMissingStartDate
	}

	start, err := utils.ParseDate(startValue)
	if err != nil {
		return models.TimePeriod{}, fmt.Errorf("start range: %w", err)
	}

	period := models.TimePeriod{Start: start, Ongoing: true}

	if endValue := meta.EndRangeValue(); endValue != "" {
		end, err := utils.ParseDate(endValue)
		if err != nil {
			return models.TimePeriod{}, fmt.Errorf("end range: %w", err)
		}

		period.End = end
		period.Ongoing = false
	}

	return period, nil
}

// writeResource writes rows as CSV using the first row's column order.
func (t *Transformer) writeResource(sourceID string, rows []models.Row) (*models.Resource, error) {
	fileName := strings.ToLower(sourceID) + "." + csvFormat
	path := filepath.Join(t.workDir, fileName)

	if err := os.MkdirAll(t.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	if err := WriteCSV(path, rows); err != nil {
		return nil, err
	}

	hash, err := checksum.File(path)
	if err != nil {
		return nil, err
	}

	return &models.Resource{
		Name:        fileName,
		Description: "",
		Format:      csvFormat,
		Path:        path,
		Hash:        hash,
		Rows:        len(rows),
	}, nil
}

// WriteCSV writes rows to path with a header taken from the first row.
func WriteCSV(path string, rows []models.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	header := rows[0].Keys()

	if err := w.Write(header); err != nil {
		f.Close()

		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))

	for _, row := range rows {
		for i, col := range header {
			v, _ := row.Get(col)
			record[i] = models.FormatValue(v)
		}

		if err := w.Write(record); err != nil {
			f.Close()

			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()

		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return f.Close()
}

func (t *Transformer) showcase(meta *models.MetadataRecord, title string, tags []string) *models.Showcase {
	link := meta.VisualizationURL()
	if link == "" {
		return nil
	}

	return &models.Showcase{
		Name:     utils.Slugify(meta.DatasetID) + "-showcase",
		Title:    title + " Showcase",
		Notes:    meta.Description,
		URL:      link,
		ImageURL: t.dataset.ShowcaseImageURL,
		Tags:     append([]string(nil), tags...),
	}
}
