package catalog

import (
	"github.com/goccy/go-json"
)

// Record is a catalog dataset as returned by search and show actions.
type Record struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Archived  bool             `json:"archived"`
	Private   bool             `json:"private"`
	Resources []RemoteResource `json:"resources,omitempty"`
}

// RemoteResource is a resource already attached to a catalog dataset.
type RemoteResource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Format string `json:"format"`
	Hash   string `json:"hash"`
}

// PatchRequest changes selected fields of an existing record.
type PatchRequest struct {
	Fields map[string]any
	ID     string
	Name   string
}

// PublishResult summarises one dataset upsert.
type PublishResult struct {
	PackageID         string
	Name              string
	ResourcesUploaded []string
	ResourcesSkipped  []string
	ResourcesDeleted  []string
	ShowcaseName      string
	Created           bool
}

// RetireResult summarises a batch of patches. Failed[i] is the record
// name Errors[i] belongs to.
type RetireResult struct {
	Retired []string
	Failed  []string
	Errors  []error
}

// Tag is a catalog tag within a vocabulary.
type Tag struct {
	Name         string `json:"name"`
	VocabularyID string `json:"vocabulary_id,omitempty"`
}

// Group is a catalog group reference.
type Group struct {
	Name string `json:"name"`
}

// packagePayload is the body of package_create and package_update.
type packagePayload struct {
	ID                  string  `json:"id,omitempty"`
	Name                string  `json:"name"`
	Title               string  `json:"title"`
	Notes               string  `json:"notes"`
	Maintainer          string  `json:"maintainer"`
	OwnerOrg            string  `json:"owner_org"`
	DataUpdateFrequency string  `json:"data_update_frequency"`
	Subnational         string  `json:"subnational"`
	DatasetDate         string  `json:"dataset_date"`
	LicenseID           string  `json:"license_id,omitempty"`
	Methodology         string  `json:"methodology,omitempty"`
	DatasetSource       string  `json:"dataset_source,omitempty"`
	PackageCreator      string  `json:"package_creator,omitempty"`
	Caveats             string  `json:"caveats,omitempty"`
	UpdatedByScript     string  `json:"updated_by_script,omitempty"`
	Batch               string  `json:"batch,omitempty"`
	Groups              []Group `json:"groups"`
	Tags                []Tag   `json:"tags"`
	Private             bool    `json:"private"`
}

// showcasePayload is the body of the showcase create and update actions.
type showcasePayload struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Tags     []Tag  `json:"tags"`
}

// searchResult is the result of package_search.
type searchResult struct {
	Results []Record `json:"results"`
	Count   int      `json:"count"`
}

// actionResponse is the envelope of every action API response.
type actionResponse struct {
	Error   *actionError    `json:"error,omitempty"`
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
}

// actionError is the error member of a failed action.
type actionError struct {
	Message string `json:"message"`
	Type    string `json:"__type"`
}
