package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peacesecurity/internal/catalog"
	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
	"peacesecurity/internal/source"
	"peacesecurity/internal/state"
)

var (
	fixedNow      = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	errCatalogOff = errors.New("catalog unavailable")
)

const metadataJSON = `[
  {"Dataset ID":"DPPADPOSS-FATALITIES","Name":"Mission Fatalities","Description":"Fatalities.\nSince 1948.",
   "Update Frequency":"Ad Hoc","Tags":[{"Tag":"Fatalities"}],"Themes":null,"Start Range":null,"End Range":null,
   "Visualization Link":"https://app.powerbi.com/view?r=abc","Last Update Date":"2023-11-28T10:00:00"},
  {"Dataset ID":"DPPADPOSS-PKO","Name":"peacekeeping operations","Description":"",
   "Update Frequency":"Monthly","Tags":[],"Themes":[],"Start Range":"1948-01-01","End Range":null,
   "Visualization Link":null,"Last Update Date":"2020-06-01"},
  {"Dataset ID":"DPPADPOSS-BROKEN","Name":"broken","Description":"",
   "Update Frequency":"Monthly","Tags":[],"Themes":[],"Start Range":"2000-01-01","End Range":null,
   "Visualization Link":null,"Last Update Date":"2024-01-15"},
  {"Dataset ID":"DPPADPOSS-NOSTART","Name":"no start","Description":"",
   "Update Frequency":"Monthly","Tags":[],"Themes":[],"Start Range":null,"End Range":null,
   "Visualization Link":null,"Last Update Date":null}
]`

const fatalitiesJSON = `[
  {"mission":"UNTSO","incident_date":-678153600000,"casualties":1},
  {"mission":"UNMISS","incident_date":1701129600000,"casualties":2}
]`

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata/all":
			_, _ = w.Write([]byte(metadataJSON))
		case "/data/DPPADPOSS-FATALITIES/json":
			_, _ = w.Write([]byte(fatalitiesJSON))
		case "/data/DPPADPOSS-PKO/json":
			_, _ = w.Write([]byte(`[{"mission":"UNTSO","status":"active"}]`))
		case "/data/DPPADPOSS-NOSTART/json":
			_, _ = w.Write([]byte(`[{"mission":"UNTSO"}]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

// fakeCatalog is an in-memory catalog.Client.
type fakeCatalog struct {
	records   []catalog.Record
	created   []*models.Dataset
	showcases []*models.Showcase
	patches   []catalog.PatchRequest
	searchErr error
	mu        sync.Mutex
}

func (f *fakeCatalog) Search(_ context.Context, _ string) ([]catalog.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.searchErr != nil {
		return nil, f.searchErr
	}

	return append([]catalog.Record(nil), f.records...), nil
}

func (f *fakeCatalog) Create(_ context.Context, ds *models.Dataset, sc *models.Showcase) (*catalog.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, ds)
	if sc != nil {
		f.showcases = append(f.showcases, sc)
	}

	return &catalog.PublishResult{Name: ds.Name, Created: true}, nil
}

func (f *fakeCatalog) Patch(_ context.Context, req catalog.PatchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.patches = append(f.patches, req)

	return nil
}

type fixture struct {
	cfg        *config.Config
	catalog    *fakeCatalog
	statePath  string
	errorsPath string
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()

	dir := t.TempDir()

	cfg := &config.Config{
		Source: config.SourceConfig{
			BaseURL: baseURL,
			Retry: config.RetryPolicy{
				MaxAttempts:       1,
				InitialDelayMs:    1,
				MaxDelayMs:        1,
				BackoffMultiplier: 1,
				TimeoutSec:        5,
			},
		},
		Catalog: config.CatalogConfig{
			URL:          "https://data.humdata.org",
			Organization: "unpeacesecurity",
			OwnerOrg:     "8cb62b36-c3cc-4c7a-aae7-a63e2d480ffc",
			Maintainer:   "0d34fa8f-de81-43cc-9c1b-7053455e2e74",
		},
		Dataset: config.DatasetConfig{
			DatasetNames: map[string]string{"DPPADPOSS-FATALITIES": "peacekeeping-fatalities"},
			BaseTags:     []string{"complex emergency-conflict-security", "peacekeeping"},
			AllowedTags:  []string{"complex emergency-conflict-security", "fatalities", "peacekeeping"},
		},
		Run: config.RunConfig{
			StatePath:  filepath.Join(dir, "dataset_dates.txt"),
			ErrorsPath: filepath.Join(dir, "errors.txt"),
			WorkDir:    filepath.Join(dir, "work"),
		},
	}
	cfg.ApplyDefaults()

	require.NoError(t, os.WriteFile(cfg.Run.StatePath, []byte("DEFAULT=2023-01-01,DPPADPOSS-PKO=2021-01-01\n"), 0o644))

	return &fixture{
		cfg: cfg,
		catalog: &fakeCatalog{records: []catalog.Record{
			{ID: "1", Name: "peacekeeping-fatalities"},
			{ID: "2", Name: "dppadposs-pko"},
			{ID: "3", Name: "discontinued-dataset"},
			{ID: "4", Name: "long-gone", Archived: true},
		}},
		statePath:  cfg.Run.StatePath,
		errorsPath: cfg.Run.ErrorsPath,
	}
}

func (f *fixture) runner() *Runner {
	return f.runnerWithLogger(logger.Discard())
}

func (f *fixture) runnerWithLogger(log *logger.Logger) *Runner {
	src := source.NewClient(&f.cfg.Source, source.ModeLive, log)

	r := NewRunner(f.cfg, src, f.catalog, state.NewStore(f.statePath), log)
	r.now = func() time.Time { return fixedNow }
	r.newBatch = func() string { return "batch-1" }
	r.detector = state.NewDetectorWithClock(log, r.now)

	return r
}

func (f *fixture) loadState(t *testing.T) state.Watermarks {
	t.Helper()

	marks, err := state.NewStore(f.statePath).Load()
	require.NoError(t, err)

	return marks
}

func TestRunner_Run_EndToEnd(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)

	rep, err := f.runner().Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Selected)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 1, rep.Published)
	assert.Equal(t, 1, rep.Retired)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 2, rep.Failed())

	// Only the confirmed publish advances its watermark.
	marks := f.loadState(t)
	assert.Equal(t, time.Date(2023, 11, 28, 10, 0, 0, 0, time.UTC), marks["DPPADPOSS-FATALITIES"])
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), marks["DPPADPOSS-PKO"])
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), marks[state.DefaultKey])
	assert.NotContains(t, marks, "DPPADPOSS-BROKEN")
	assert.NotContains(t, marks, "DPPADPOSS-NOSTART")

	require.Len(t, f.catalog.created, 1)
	ds := f.catalog.created[0]
	assert.Equal(t, "peacekeeping-fatalities", ds.Name)
	assert.Equal(t, "adhoc", ds.UpdateFrequency)
	assert.Equal(t, "batch-1", ds.Batch)
	assert.Equal(t, "[1948-07-06T00:00:00 TO 2023-11-28T23:59:59]", ds.TimePeriod.String())
	assert.Equal(t, []string{"complex emergency-conflict-security", "fatalities", "peacekeeping"}, ds.Tags)
	require.Len(t, ds.Resources, 1)
	assert.Equal(t, 2, ds.Resources[0].Rows)

	// Showcases are only sent when enabled.
	assert.Empty(t, f.catalog.showcases)

	require.Len(t, f.catalog.patches, 1)
	assert.Equal(t, "discontinued-dataset", f.catalog.patches[0].Name)
	assert.Equal(t, true, f.catalog.patches[0].Fields["archived"])

	content, err := os.ReadFile(f.errorsPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "DPPADPOSS-BROKEN")
	assert.Contains(t, string(content), "could not download")
	assert.Contains(t, string(content), "DPPADPOSS-NOSTART")
	assert.Contains(t, string(content), "start date missing")
}

func TestRunner_Run_LogsFailuresWithBatch(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)

	var buf bytes.Buffer

	_, err := f.runnerWithLogger(logger.NewLoggerWithWriter("info", &buf)).Run(context.Background(), Options{})
	require.NoError(t, err)

	var fetchLine, summaryLine string

	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, `msg="Failed to fetch rows"`):
			fetchLine = line
		case strings.Contains(line, `msg="Run finished with failures"`):
			summaryLine = line
		}
	}

	assert.Contains(t, fetchLine, "batch=batch-1")
	assert.Contains(t, fetchLine, "dataset=DPPADPOSS-BROKEN")

	assert.Contains(t, summaryLine, "batch=batch-1")
	assert.Contains(t, summaryLine, "failed=2")
	assert.Contains(t, summaryLine, "2 errors occurred")
	assert.Contains(t, summaryLine, "DPPADPOSS-NOSTART")
}

func TestRunner_Run_SecondRunSelectsOnlyFailures(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)

	_, err := f.runner().Run(context.Background(), Options{})
	require.NoError(t, err)

	rep, err := f.runner().Run(context.Background(), Options{})
	require.NoError(t, err)

	// FATALITIES is up to date; the failed ones are retried.
	assert.Equal(t, 2, rep.Selected)
	assert.Equal(t, 0, rep.Published)
	assert.Len(t, f.catalog.created, 1)
}

func TestRunner_Run_DatasetFilterAndShowcase(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)
	f.cfg.Catalog.PublishShowcases = true

	rep, err := f.runner().Run(context.Background(), Options{Datasets: []string{"DPPADPOSS-FATALITIES"}})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Selected)
	assert.Equal(t, 1, rep.Published)
	assert.Equal(t, 0, rep.Failed())

	require.Len(t, f.catalog.showcases, 1)
	assert.Equal(t, "dppadposs-fatalities-showcase", f.catalog.showcases[0].Name)

	// Unselected datasets still count as known to the catalog.
	require.Len(t, f.catalog.patches, 1)
	assert.Equal(t, "discontinued-dataset", f.catalog.patches[0].Name)
}

func TestRunner_Run_DryRun(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)

	before, err := os.ReadFile(f.statePath)
	require.NoError(t, err)

	rep, err := f.runner().Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 0, rep.Published)
	assert.Empty(t, f.catalog.created)
	assert.Empty(t, f.catalog.patches)

	after, err := os.ReadFile(f.statePath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunner_Run_CatalogSearchFailureIsRecorded(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)
	f.catalog.searchErr = errCatalogOff

	rep, err := f.runner().Run(context.Background(), Options{Datasets: []string{"DPPADPOSS-FATALITIES"}})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Published)
	assert.Equal(t, 1, rep.Failed())
	assert.True(t, errors.Is(rep.Errors.Err(), errCatalogOff))
}

func TestRunner_Run_MissingStateFile(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)
	require.NoError(t, os.Remove(f.statePath))

	_, err := f.runner().Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrLoadState)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunner_Run_MetadataFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newFixture(t, server.URL)

	_, err := f.runner().Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrFetchMetadata)
	assert.ErrorIs(t, err, source.ErrFetchFailed)
}

func TestRunner_Run_CancelledKeepsState(t *testing.T) {
	f := newFixture(t, newSourceServer(t).URL)

	ctx, cancel := context.WithCancel(context.Background())

	r := f.runner()
	r.source = cancellingSource{Source: r.source, cancel: cancel}

	_, err := r.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)

	content, readErr := os.ReadFile(f.statePath)
	require.NoError(t, readErr)
	assert.Equal(t, "DEFAULT=2023-01-01,DPPADPOSS-PKO=2021-01-01\n", string(content))
	assert.Empty(t, f.catalog.created)
}

// cancellingSource cancels the run once metadata has been fetched.
type cancellingSource struct {
	Source
	cancel context.CancelFunc
}

func (c cancellingSource) FetchMetadata(ctx context.Context) ([]models.MetadataRecord, error) {
	records, err := c.Source.FetchMetadata(ctx)
	c.cancel()

	return records, err
}

func TestKnownNames(t *testing.T) {
	f := newFixture(t, "https://example.org/")

	known := f.runner().knownNames([]models.MetadataRecord{
		{DatasetID: "DPPADPOSS-FATALITIES"},
		{DatasetID: "DPPADPOSS-PKO"},
		{DatasetID: ""},
	})

	names := make([]string, 0, len(known))
	for k := range known {
		names = append(names, k)
	}

	assert.ElementsMatch(t, []string{"peacekeeping-fatalities", "dppadposs-pko"}, names)
	assert.False(t, strings.Contains(strings.Join(names, ","), "DPPADPOSS"))
}
