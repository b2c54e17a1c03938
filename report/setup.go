package report

import (
	"encoding/json"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/monitor"
)

// ReportSetup is what the parent sends on the setup channel in answer to init.
type ReportSetup struct {
	ReportID     string          `json:"reportId"`
	BookmarkName string          `json:"bookmarkName,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	Settings     Settings        `json:"settings"`
	SavedState   json.RawMessage `json:"savedState,omitempty"`
}

// Settings describes the environment the report runs in.
type Settings struct {
	BaseURL      string          `json:"baseUrl"`
	Environment  string          `json:"environment,omitempty"`
	Translations Translations    `json:"translations"`
	Currency     json.RawMessage `json:"currency,omitempty"`
	CurrentUser  monitor.User    `json:"currentUser"`
	Language     string          `json:"language,omitempty"`
	Workspace    Workspace       `json:"workspace"`
	Features     []Feature       `json:"features,omitempty"`
}

// Workspace identifies the tenant the report is shown in.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FeatureStatusEnabled is the status of an enabled feature flag.
const FeatureStatusEnabled = "ENABLED"

// Feature is one feature flag of the workspace.
type Feature struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Translations holds the labels of the workspace's data model.
type Translations struct {
	FactSheetTypes map[string]string           `json:"factSheetTypes,omitempty"`
	Relations      map[string]RelationLabels   `json:"relations,omitempty"`
	Fields         map[string]map[string]Field `json:"fields,omitempty"`
	Custom         json.RawMessage             `json:"custom,omitempty"`
}

// RelationLabels translates a relation and its fields.
type RelationLabels struct {
	Label  string           `json:"label"`
	Fields map[string]Field `json:"fields,omitempty"`
}

// Field translates a field and its enumerated values.
type Field struct {
	Label  string                `json:"label"`
	Values map[string]ValueLabel `json:"values,omitempty"`
}

// ValueLabel translates one field value.
type ValueLabel struct {
	Label string `json:"label"`
}

func decodeSetup(data json.RawMessage) (*ReportSetup, error) {
	var setup ReportSetup
	if err := json.Unmarshal(data, &setup); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedEnvelope, "setup: %v", err)
	}
	return &setup, nil
}

// FeatureEnabled reports whether the setup lists featureID as enabled.
func (s *ReportSetup) FeatureEnabled(featureID string) bool {
	for _, f := range s.Settings.Features {
		if f.ID == featureID {
			return f.Status == FeatureStatusEnabled
		}
	}
	return false
}
