package report

import (
	"encoding/json"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/wire"
)

// Configuration describes what a report needs from the parent and which
// parent events it wants to handle. Fields tagged json:"-" are callbacks;
// everything else is sent to the parent as the report's requirements.
type Configuration struct {
	Facets      []FacetsConfig `json:"facets,omitempty"`
	MenuActions *MenuActions   `json:"menuActions,omitempty"`

	ReportViewFactSheetType string                     `json:"reportViewFactSheetType,omitempty"`
	ReportViewOption        json.RawMessage            `json:"reportViewOption,omitempty"`
	ReportViewCallback      func(view json.RawMessage) `json:"-"`

	// AllowTableView defaults to true when nil
	AllowTableView      *bool               `json:"allowTableView,omitempty"`
	TableConfigCallback func() *TableConfig `json:"-"`

	AllowEditing          bool               `json:"allowEditing,omitempty"`
	ToggleEditingCallback func(enabled bool) `json:"-"`

	Export *ExportConfig `json:"export,omitempty"`
	UI     *UIConfig     `json:"ui,omitempty"`

	// Sentry enables error tracking when the session has no monitor of its own
	Sentry *SentryConfig `json:"sentryConfig,omitempty"`
}

// FacetsConfig configures one facet panel.
type FacetsConfig struct {
	Key                string                  `json:"key"`
	Label              string                  `json:"label,omitempty"`
	FixedFactSheetType string                  `json:"fixedFactSheetType,omitempty"`
	Attributes         []string                `json:"attributes,omitempty"`
	Sortings           []wire.InventorySorting `json:"sortings,omitempty"`
	DefaultPageSize    int                     `json:"defaultPageSize,omitempty"`
	DefaultFilters     json.RawMessage         `json:"defaultFilters,omitempty"`
	FactSheetIDs       []string                `json:"factSheetIds,omitempty"`
	FullTextSearchTerm string                  `json:"fullTextSearchTerm,omitempty"`

	// Callback receives the fact sheets matching the current filters
	Callback func(data json.RawMessage) `json:"-"`

	// FacetFiltersChangedCallback receives the complete selection after any change
	FacetFiltersChangedCallback func(selection FacetsSelection) `json:"-"`

	// FacetChangedCallback receives the single facet filter that changed
	FacetChangedCallback func(facet json.RawMessage) `json:"-"`
}

// FacetsSelection is the state of a facet panel.
type FacetsSelection struct {
	Facets             json.RawMessage `json:"facets"`
	CompositeFacets    json.RawMessage `json:"compositeFacets,omitempty"`
	DirectHits         json.RawMessage `json:"directHits,omitempty"`
	FullTextSearchTerm string          `json:"fullTextSearchTerm,omitempty"`
}

// MenuActions configures the report menu.
type MenuActions struct {
	ShowConfigure     bool             `json:"showConfigure,omitempty"`
	ConfigureCallback func()           `json:"-"`
	CustomDropdowns   []CustomDropdown `json:"customDropdowns,omitempty"`
}

// CustomDropdown is a menu dropdown with selectable entries.
type CustomDropdown struct {
	ID                      string                `json:"id"`
	Name                    string                `json:"name"`
	Entries                 []CustomDropdownEntry `json:"entries"`
	Position                string                `json:"position,omitempty"`
	InitialSelectionEntryID string                `json:"initialSelectionEntryId,omitempty"`
}

// CustomDropdownEntry is one selectable entry.
type CustomDropdownEntry struct {
	ID       string                    `json:"id"`
	Name     string                    `json:"name"`
	Callback func(CustomDropdownEntry) `json:"-"`
}

// ExportConfig influences PDF and image export.
type ExportConfig struct {
	Disabled              bool   `json:"disabled,omitempty"`
	ExportElementSelector string `json:"exportElementSelector,omitempty"`
	InputType             string `json:"inputType,omitempty"`
	FitHorizontally       *bool  `json:"fitHorizontally,omitempty"`
	FitVertically         *bool  `json:"fitVertically,omitempty"`
	Format                string `json:"format,omitempty"`
	Orientation           string `json:"orientation,omitempty"`
	Usage                 string `json:"usage,omitempty"`

	// BeforeExport produces the export payload for a parent export request
	BeforeExport func(request json.RawMessage) (json.RawMessage, error) `json:"-"`
}

// UIConfig configures the UI elements shown around the report.
type UIConfig struct {
	Timeline             json.RawMessage `json:"timeline,omitempty"`
	Elements             *UIElements     `json:"elements,omitempty"`
	ShowCompositeFilters bool            `json:"showCompositeFilters,omitempty"`

	// Update reacts to UI selection changes. A non-nil result is sent back as the new UI state.
	Update func(selection UISelection) (*UIMinimalConfiguration, error) `json:"-"`

	// OnButtonClick maps a UI button id to its click handler
	OnButtonClick map[string]func(click ButtonClick) `json:"-"`
}

// UIElements holds element definitions and their values keyed by element id.
type UIElements struct {
	Values map[string]json.RawMessage `json:"values"`
	Root   UIRoot                     `json:"root"`
}

// UIRoot is the top-level element layout.
type UIRoot struct {
	Items json.RawMessage `json:"items"`
	Style json.RawMessage `json:"style,omitempty"`
}

// UIMinimalConfiguration is the part of the UI a selection update may change.
type UIMinimalConfiguration struct {
	Timeline             json.RawMessage `json:"timeline,omitempty"`
	Elements             *UIElements     `json:"elements,omitempty"`
	ShowCompositeFilters *bool           `json:"showCompositeFilters,omitempty"`
}

// UISelection is the current state of the UI elements.
type UISelection struct {
	Elements  *UIElements     `json:"elements"`
	Facets    json.RawMessage `json:"facets"`
	Timeline  json.RawMessage `json:"timeline"`
	Dropdowns json.RawMessage `json:"dropdowns"`
}

// ButtonClick is the payload of a UI button click.
type ButtonClick struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SentryConfig enables error tracking for the report.
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment,omitempty"`
}

// TableConfig configures the report's table view.
type TableConfig struct {
	FactSheetType         string            `json:"factSheetType"`
	Attributes            []TableAttribute  `json:"attributes"`
	Columns               json.RawMessage   `json:"columns,omitempty"`
	RelatedFactSheetTypes map[string]string `json:"relatedFactSheetTypes,omitempty"`
}

// TableAttribute is either a plain field name or a column definition.
type TableAttribute struct {
	Field  string
	Column *TableColumn
}

// TableColumn defines an advanced table column.
type TableColumn struct {
	Key            string `json:"key"`
	Label          string `json:"label,omitempty"`
	Type           string `json:"type"`
	Sortable       bool   `json:"sortable,omitempty"`
	Align          string `json:"align,omitempty"`
	IsCustomColumn bool   `json:"isCustomColumn,omitempty"`
	VirtualKey     string `json:"virtualKey,omitempty"`
}

func (a TableAttribute) MarshalJSON() ([]byte, error) {
	if a.Column != nil {
		return json.Marshal(a.Column)
	}
	return json.Marshal(a.Field)
}

func (a *TableAttribute) UnmarshalJSON(data []byte) error {
	var field string
	if err := json.Unmarshal(data, &field); err == nil {
		*a = TableAttribute{Field: field}
		return nil
	}
	var col TableColumn
	if err := json.Unmarshal(data, &col); err != nil {
		return errors.Wrap(err, "table attribute is neither a field name nor a column")
	}
	*a = TableAttribute{Column: &col}
	return nil
}

// requirements is what ready and updateRequirements carry.
type requirements struct {
	Configuration
	ShowView bool `json:"showView"`
}

func (c *Configuration) requirements() (json.RawMessage, error) {
	req := requirements{Configuration: *c, ShowView: c.ReportViewFactSheetType != ""}
	if req.AllowTableView == nil {
		allow := true
		req.AllowTableView = &allow
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode report requirements")
	}
	return raw, nil
}
