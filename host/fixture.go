package host

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/teranos/reportlib/errors"
)

// Fixture is the canned state the development host serves.
//
//	setup:        the ReportSetup sent on the setup channel after init
//	permissions:  answers for hasPermission (missing = denied)
//	features:     answers for isFeatureEnabled; falls back to setup.settings.features
//	responses:    canned data for any correlated action, keyed by action name
//	failures:     canned failure payloads, keyed by action name
type Fixture struct {
	Setup       json.RawMessage            `json:"setup"`
	Permissions map[string]bool            `json:"permissions,omitempty"`
	Features    map[string]bool            `json:"features,omitempty"`
	Responses   map[string]json.RawMessage `json:"responses,omitempty"`
	Failures    map[string]json.RawMessage `json:"failures,omitempty"`
}

// DefaultFixture is served when no fixture file is configured.
func DefaultFixture() *Fixture {
	return &Fixture{
		Setup: json.RawMessage(`{
  "reportId": "dev.reportlib.report",
  "bookmarkName": "Development",
  "settings": {
    "environment": "development",
    "language": "en",
    "currency": "EUR",
    "currentUser": {"id": "dev-user", "userName": "dev", "email": "dev@localhost"},
    "workspace": {"id": "dev-workspace", "name": "Development"},
    "translations": {"factSheetTypes": {}, "relations": {}, "fields": {}, "custom": {}},
    "features": []
  }
}`),
		Permissions: map[string]bool{},
	}
}

// LoadFixture reads a fixture from a .json, .yaml or .yml file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read fixture %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, errors.Wrapf(err, "fixture %s", path)
		}
	}

	return ParseFixture(data)
}

// ParseFixture decodes a JSON fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse fixture")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if len(f.Setup) == 0 {
		return errors.New("fixture has no setup")
	}
	setup := gjson.ParseBytes(f.Setup)
	if !setup.IsObject() {
		return errors.New("fixture setup must be an object")
	}
	if !setup.Get("reportId").Exists() {
		return errors.WithHint(errors.New("fixture setup has no reportId"), "add setup.reportId")
	}
	return nil
}

// featureEnabled answers isFeatureEnabled from the features map, then the setup's feature list.
func (f *Fixture) featureEnabled(id string) bool {
	if enabled, ok := f.Features[id]; ok {
		return enabled
	}
	status := gjson.GetBytes(f.Setup, `settings.features.#(id=="`+escapeQuery(id)+`").status`)
	return status.String() == "ENABLED"
}

// setupFor returns the setup payload with settings.baseUrl filled in when the fixture omits it.
func (f *Fixture) setupFor(baseURL string) (json.RawMessage, error) {
	if baseURL == "" || gjson.GetBytes(f.Setup, "settings.baseUrl").Exists() {
		return f.Setup, nil
	}

	var setup map[string]interface{}
	if err := json.Unmarshal(f.Setup, &setup); err != nil {
		return nil, errors.Wrap(err, "fixture setup")
	}
	settings, _ := setup["settings"].(map[string]interface{})
	if settings == nil {
		settings = map[string]interface{}{}
		setup["settings"] = settings
	}
	settings["baseUrl"] = baseURL

	raw, err := json.Marshal(setup)
	if err != nil {
		return nil, errors.Wrap(err, "fixture setup")
	}
	return raw, nil
}

// yamlToJSON converts a YAML document into JSON so fixtures share one decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "invalid YAML")
	}
	doc, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// jsonCompatible rewrites map[interface{}]interface{} nodes, which encoding/json rejects.
func jsonCompatible(v interface{}) (interface{}, error) {
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			converted, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			node[k] = converted
		}
		return node, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, child := range node {
			key, ok := k.(string)
			if !ok {
				return nil, errors.Newf("non-string key %v", k)
			}
			converted, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	case []interface{}:
		for i, child := range node {
			converted, err := jsonCompatible(child)
			if err != nil {
				return nil, err
			}
			node[i] = converted
		}
		return node, nil
	}
	return v, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
