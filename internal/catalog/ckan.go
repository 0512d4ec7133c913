// Package catalog synchronises shaped datasets with a CKAN catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"peacesecurity/internal/config"
	"peacesecurity/internal/logger"
	"peacesecurity/internal/models"
	"peacesecurity/pkg/utils"
)

// Action API errors.
var (
	ErrActionFailed = errors.New("catalog action failed")
	ErrNotFound     = errors.New("catalog record not found")
	ErrValidation   = errors.New("catalog rejected the request")
)

const (
	searchPageSize      = 1000
	maxErrorBodyLength  = 300
	notFoundErrorType   = "Not Found Error"
	validationErrorType = "Validation Error"
)

// Client is the capability set the connector needs from a catalog.
type Client interface {
	Search(ctx context.Context, fq string) ([]Record, error)
	Create(ctx context.Context, dataset *models.Dataset, showcase *models.Showcase) (*PublishResult, error)
	Patch(ctx context.Context, req PatchRequest) error
}

// Ensure CKANClient implements Client.
var _ Client = (*CKANClient)(nil)

// CKANClient talks to the CKAN action API.
type CKANClient struct {
	http         *resty.Client
	strings      *utils.StringHelper
	logger       *logger.Logger
	vocabularyID string
}

// NewCKANClient creates an action API client for the configured catalog.
func NewCKANClient(cfg *config.CatalogConfig, userAgent string, log *logger.Logger) *CKANClient {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/api/3/action/").
		SetTimeout(time.Duration(cfg.TimeoutSec)*time.Second).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if cfg.APIKey != "" {
		rest.SetHeader("Authorization", cfg.APIKey)
	}

	return &CKANClient{
		http:         rest,
		strings:      utils.NewStringHelper(),
		logger:       log,
		vocabularyID: cfg.TagVocabularyID,
	}
}

// Search returns every record matching the filter query, following pagination.
func (c *CKANClient) Search(ctx context.Context, fq string) ([]Record, error) {
	var records []Record

	for start := 0; ; start += searchPageSize {
		req := c.http.R().SetContext(ctx).SetQueryParams(map[string]string{
			"fq":              fq,
			"rows":            strconv.Itoa(searchPageSize),
			"start":           strconv.Itoa(start),
			"include_private": "true",
		})

		var page searchResult
		if err := c.do(req, "GET", "package_search", &page); err != nil {
			return nil, err
		}

		records = append(records, page.Results...)

		if len(page.Results) == 0 || len(records) >= page.Count {
			break
		}
	}

	c.logger.Debug("Searched catalog", "fq", fq, "records", len(records))

	return records, nil
}

// Create creates or updates a dataset, uploads its resources, removes
// resources it no longer has, and publishes the showcase when given.
func (c *CKANClient) Create(ctx context.Context, dataset *models.Dataset, showcase *models.Showcase) (*PublishResult, error) {
	frequency, err := FrequencyCode(dataset.UpdateFrequency)
	if err != nil {
		return nil, err
	}

	existing, err := c.show(ctx, dataset.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up %s: %w", dataset.Name, err)
	}

	payload := c.packagePayload(dataset, frequency)
	action := "package_create"

	if existing != nil {
		payload.ID = existing.ID
		action = "package_update"
	}

	var saved Record
	if err := c.do(c.http.R().SetContext(ctx).SetBody(payload), "POST", action, &saved); err != nil {
		return nil, err
	}

	result := &PublishResult{
		PackageID: saved.ID,
		Name:      saved.Name,
		Created:   existing == nil,
	}

	remote := map[string]RemoteResource{}
	if existing != nil {
		for _, r := range existing.Resources {
			remote[r.Name] = r
		}
	}

	keep := make(map[string]bool, len(dataset.Resources))

	for _, res := range dataset.Resources {
		keep[res.Name] = true

		uploaded, err := c.uploadResource(ctx, saved.ID, res, remote)
		if err != nil {
			return nil, err
		}

		if uploaded {
			result.ResourcesUploaded = append(result.ResourcesUploaded, res.Name)
		} else {
			result.ResourcesSkipped = append(result.ResourcesSkipped, res.Name)
		}
	}

	for _, name := range sortedNames(remote) {
		if keep[name] {
			continue
		}

		body := map[string]string{"id": remote[name].ID}
		if err := c.do(c.http.R().SetContext(ctx).SetBody(body), "POST", "resource_delete", nil); err != nil {
			return nil, err
		}

		result.ResourcesDeleted = append(result.ResourcesDeleted, name)
	}

	if showcase != nil {
		if err := c.publishShowcase(ctx, saved.ID, showcase); err != nil {
			return nil, err
		}

		result.ShowcaseName = showcase.Name
	}

	return result, nil
}

// Patch updates selected fields of a record, leaving its resources untouched.
func (c *CKANClient) Patch(ctx context.Context, req PatchRequest) error {
	body := make(map[string]any, len(req.Fields)+1)
	for k, v := range req.Fields {
		body[k] = v
	}

	body["id"] = req.ID
	if req.ID == "" {
		body["id"] = req.Name
	}

	return c.do(c.http.R().SetContext(ctx).SetBody(body), "POST", "package_patch", nil)
}

func (c *CKANClient) show(ctx context.Context, name string) (*Record, error) {
	var rec Record
	if err := c.do(c.http.R().SetContext(ctx).SetQueryParam("id", name), "GET", "package_show", &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (c *CKANClient) uploadResource(ctx context.Context, packageID string, res models.Resource, remote map[string]RemoteResource) (bool, error) {
	existing, found := remote[res.Name]
	if found && res.Hash != "" && existing.Hash == res.Hash {
		c.logger.Debug("Resource unchanged", "resource", res.Name, "hash", res.Hash)

		return false, nil
	}

	form := map[string]string{
		"name":          res.Name,
		"description":   res.Description,
		"format":        res.Format,
		"hash":          res.Hash,
		"url_type":      "upload",
		"resource_type": "file.upload",
	}

	action := "resource_create"
	if found {
		action = "resource_update"
		form["id"] = existing.ID
	} else {
		form["package_id"] = packageID
	}

	req := c.http.R().SetContext(ctx).SetFormData(form).SetFile("upload", res.Path)
	if err := c.do(req, "POST", action, nil); err != nil {
		return false, err
	}

	return true, nil
}

func (c *CKANClient) publishShowcase(ctx context.Context, packageID string, showcase *models.Showcase) error {
	payload := showcasePayload{
		Name:     showcase.Name,
		Title:    showcase.Title,
		Notes:    showcase.Notes,
		URL:      showcase.URL,
		ImageURL: showcase.ImageURL,
		Tags:     c.tags(showcase.Tags),
	}

	var existing Record

	err := c.do(c.http.R().SetContext(ctx).SetQueryParam("id", showcase.Name), "GET", "ckanext_showcase_show", &existing)

	action := "ckanext_showcase_create"

	switch {
	case err == nil:
		payload.ID = existing.ID
		action = "ckanext_showcase_update"
	case !errors.Is(err, ErrNotFound):
		return err
	}

	var saved Record
	if err := c.do(c.http.R().SetContext(ctx).SetBody(payload), "POST", action, &saved); err != nil {
		return err
	}

	association := map[string]string{
		"package_id":  packageID,
		"showcase_id": saved.ID,
	}

	err = c.do(c.http.R().SetContext(ctx).SetBody(association), "POST", "ckanext_showcase_package_association_create", nil)
	if err != nil && !errors.Is(err, ErrValidation) {
		return err
	}

	return nil
}

func (c *CKANClient) packagePayload(ds *models.Dataset, frequency string) packagePayload {
	groups := make([]Group, 0, len(ds.Locations))
	for _, loc := range ds.Locations {
		groups = append(groups, Group{Name: loc})
	}

	subnational := "0"
	if ds.Subnational {
		subnational = "1"
	}

	return packagePayload{
		Name:                ds.Name,
		Title:               ds.Title,
		Notes:               ds.Notes,
		Maintainer:          ds.Maintainer,
		OwnerOrg:            ds.OwnerOrg,
		DataUpdateFrequency: frequency,
		Subnational:         subnational,
		DatasetDate:         ds.TimePeriod.String(),
		LicenseID:           ds.LicenseID,
		Methodology:         ds.Methodology,
		DatasetSource:       ds.DatasetSource,
		PackageCreator:      ds.PackageCreator,
		Caveats:             ds.Caveats,
		UpdatedByScript:     ds.UpdatedByScript,
		Batch:               ds.Batch,
		Groups:              groups,
		Tags:                c.tags(ds.Tags),
		Private:             false,
	}
}

func (c *CKANClient) tags(names []string) []Tag {
	tags := make([]Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, Tag{Name: name, VocabularyID: c.vocabularyID})
	}

	return tags
}

// do executes an action and decodes its result into out when out is non-nil.
func (c *CKANClient) do(req *resty.Request, method, action string, out any) error {
	resp, err := req.Execute(method, action)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActionFailed, action, err)
	}

	var envelope actionResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("%w: %s: status %d: %s", ErrActionFailed, action, resp.StatusCode(), c.errorDetail(resp.Body()))
	}

	if !envelope.Success || resp.IsError() {
		if envelope.Error != nil {
			switch envelope.Error.Type {
			case notFoundErrorType:
				return fmt.Errorf("%w: %s", ErrNotFound, action)
			case validationErrorType:
				return fmt.Errorf("%w: %s: %w: %s", ErrActionFailed, action, ErrValidation, c.errorDetail(resp.Body()))
			}
		}

		detail := ""
		if envelope.Error != nil {
			detail = strings.TrimSpace(envelope.Error.Type + " " + envelope.Error.Message)
		}

		return fmt.Errorf("%w: %s: status %d: %s", ErrActionFailed, action, resp.StatusCode(), detail)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: %s: failed to decode result: %w", ErrActionFailed, action, err)
	}

	return nil
}

func (c *CKANClient) errorDetail(body []byte) string {
	return c.strings.TruncateString(c.strings.NormalizeWhitespace(string(body)), maxErrorBodyLength)
}

func sortedNames(resources map[string]RemoteResource) []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
