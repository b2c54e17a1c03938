package wire

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/reportlib/errors"
)

// Params is the typed payload of an outbound action.
// Each known action has its own struct; unknown actions decode to Opaque.
type Params interface {
	Action() Action
}

// NewOutbound builds an envelope for p. An empty id sends it fire-and-forget.
func NewOutbound(p Params, id string) (Outbound, error) {
	out := Outbound{Action: string(p.Action()), ID: id}
	raw, err := json.Marshal(p)
	if err != nil {
		return out, errors.Wrapf(err, "failed to encode params for %s", p.Action())
	}
	if !bytes.Equal(raw, []byte("null")) {
		out.Params = raw
	}
	return out, nil
}

var paramFactories = map[Action]func() Params{
	ActionInit:                      func() Params { return &InitParams{} },
	ActionReady:                     func() Params { return &Requirements{} },
	ActionUpdateRequirements:        func() Params { return &Requirements{Update: true} },
	ActionExecuteGraphQL:            func() Params { return &GraphQLParams{} },
	ActionGetProjections:            func() Params { return &ProjectionsParams{} },
	ActionGetAllFactSheets:          func() Params { return &AllFactSheetsParams{} },
	ActionGetMetricsMeasurements:    func() Params { return &MetricsMeasurementsParams{} },
	ActionGetMetricsRawSeries:       func() Params { return &MetricsRawSeriesParams{} },
	ActionExecuteParentOriginXHR:    func() Params { return &XHRParams{} },
	ActionRequestFactSheetSelection: func() Params { return &FactSheetSelectionParams{} },
	ActionOpenFormModal:             func() Params { return &FormModalParams{} },
	ActionHasPermission:             func() Params { return &PermissionParams{} },
	ActionIsFeatureEnabled:          func() Params { return &FeatureParams{} },
	ActionPublishState:              func() Params { return &PublishStateParams{} },
	ActionOpenLink:                  func() Params { return &LinkParams{} },
	ActionOpenRouterLink:            func() Params { return &RouterLinkParams{} },
	ActionNavigateToInventory:       func() Params { return &InventoryParams{} },
	ActionShowLegend:                func() Params { return &LegendParams{} },
	ActionShowToastr:                func() Params { return &ToastrParams{} },
	ActionTrackReportEvent:          func() Params { return &ReportEventParams{} },
	ActionOpenSidePane:              func() Params { return &SidePaneParams{} },
	ActionOpenReportInNewTab:        func() Params { return &NewTabParams{} },
	ActionSendExcludedFactSheets:    func() Params { return &ExcludedFactSheetsParams{} },
	ActionUpdateTableConfig:         func() Params { return &TableConfigParams{} },
	ActionShowTablePopover:          func() Params { return &TablePopoverParams{} },
	ActionSetFacetsConfig:           func() Params { return &FacetsConfigParams{} },
	ActionUpdateUI:                  func() Params { return &UIUpdateParams{} },
	ActionExportData:                func() Params { return &ExportDataParams{} },
	ActionUpdateFormModal:           func() Params { return &FormModalUpdateParams{} },
	ActionShowSpinner:               func() Params { return Signal{Name: ActionShowSpinner} },
	ActionHideSpinner:               func() Params { return Signal{Name: ActionHideSpinner} },
	ActionShowEditToggle:            func() Params { return Signal{Name: ActionShowEditToggle} },
	ActionHideEditToggle:            func() Params { return Signal{Name: ActionHideEditToggle} },
	ActionHideTablePopover:          func() Params { return Signal{Name: ActionHideTablePopover} },
}

// Known reports whether action has a typed params struct.
func Known(action string) bool {
	_, ok := paramFactories[Action(action)]
	return ok
}

// DecodeParams turns an outbound envelope back into its typed params.
// Unknown actions are preserved as Opaque; they are never rejected.
func DecodeParams(out Outbound) (Params, error) {
	factory, ok := paramFactories[Action(out.Action)]
	if !ok {
		return Opaque{Name: Action(out.Action), Raw: out.Params}, nil
	}
	p := factory()
	if _, isSignal := p.(Signal); isSignal || len(out.Params) == 0 {
		return deref(p), nil
	}
	if err := json.Unmarshal(out.Params, p); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedEnvelope, "params for %s: %v", out.Action, err)
	}
	return deref(p), nil
}

func deref(p Params) Params {
	switch v := p.(type) {
	case *InitParams:
		return *v
	case *Requirements:
		return *v
	case *GraphQLParams:
		return *v
	case *ProjectionsParams:
		return *v
	case *AllFactSheetsParams:
		return *v
	case *MetricsMeasurementsParams:
		return *v
	case *MetricsRawSeriesParams:
		return *v
	case *XHRParams:
		return *v
	case *FactSheetSelectionParams:
		return *v
	case *FormModalParams:
		return *v
	case *PermissionParams:
		return *v
	case *FeatureParams:
		return *v
	case *PublishStateParams:
		return *v
	case *LinkParams:
		return *v
	case *RouterLinkParams:
		return *v
	case *InventoryParams:
		return *v
	case *LegendParams:
		return *v
	case *ToastrParams:
		return *v
	case *ReportEventParams:
		return *v
	case *SidePaneParams:
		return *v
	case *NewTabParams:
		return *v
	case *ExcludedFactSheetsParams:
		return *v
	case *TableConfigParams:
		return *v
	case *TablePopoverParams:
		return *v
	case *FacetsConfigParams:
		return *v
	case *UIUpdateParams:
		return *v
	case *ExportDataParams:
		return *v
	case *FormModalUpdateParams:
		return *v
	}
	return p
}

// Opaque carries params of an action this package has no struct for.
type Opaque struct {
	Name Action
	Raw  json.RawMessage
}

func (o Opaque) Action() Action { return o.Name }

func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("null"), nil
	}
	return o.Raw, nil
}

// Signal is an action without params.
type Signal struct {
	Name Action
}

func (s Signal) Action() Action { return s.Name }

func (s Signal) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// InitParams announces the library version to the parent.
type InitParams struct {
	LibVersion string `json:"libVersion"`
}

func (InitParams) Action() Action { return ActionInit }

// Requirements carries the report requirements sent with ready or updateRequirements.
// The body is the encoded requirements object itself.
type Requirements struct {
	Update bool
	Raw    json.RawMessage
}

func (r Requirements) Action() Action {
	if r.Update {
		return ActionUpdateRequirements
	}
	return ActionReady
}

func (r Requirements) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("{}"), nil
	}
	return r.Raw, nil
}

func (r *Requirements) UnmarshalJSON(data []byte) error {
	r.Raw = append(r.Raw[:0], data...)
	return nil
}

type GraphQLParams struct {
	Query       string `json:"query"`
	Variables   string `json:"variables,omitempty"`
	TrackingKey string `json:"trackingKey,omitempty"`
}

func (GraphQLParams) Action() Action { return ActionExecuteGraphQL }

type ProjectionsParams struct {
	Attributes   json.RawMessage `json:"attributes"`
	Filters      json.RawMessage `json:"filters,omitempty"`
	PointsOfView json.RawMessage `json:"pointsOfView,omitempty"`
}

func (ProjectionsParams) Action() Action { return ActionGetProjections }

type AllFactSheetsParams struct {
	FactSheetType  string          `json:"factSheetType"`
	Attributes     []string        `json:"attributes"`
	FacetSelection json.RawMessage `json:"facetSelection,omitempty"`
	PointsOfView   json.RawMessage `json:"pointsOfView,omitempty"`
	Options        json.RawMessage `json:"options,omitempty"`
}

func (AllFactSheetsParams) Action() Action { return ActionGetAllFactSheets }

type MetricsMeasurementsParams struct {
	NameOnly bool `json:"nameOnly"`
}

func (MetricsMeasurementsParams) Action() Action { return ActionGetMetricsMeasurements }

type MetricsRawSeriesParams struct {
	Query string `json:"query"`
}

func (MetricsRawSeriesParams) Action() Action { return ActionGetMetricsRawSeries }

// XHRParams asks the parent to perform an HTTP request from its own origin.
type XHRParams struct {
	Method           string          `json:"method"`
	Path             string          `json:"path"`
	Body             json.RawMessage `json:"body,omitempty"`
	ResponseType     string          `json:"responseType,omitempty"`
	ExtendedHandling bool            `json:"extendedHandling,omitempty"`
}

func (XHRParams) Action() Action { return ActionExecuteParentOriginXHR }

type FactSheetSelectionParams struct {
	Mode          string   `json:"mode"`
	Attributes    []string `json:"attributes,omitempty"`
	FactSheetType string   `json:"factSheetType,omitempty"`
}

func (FactSheetSelectionParams) Action() Action { return ActionRequestFactSheetSelection }

type FormModalParams struct {
	Fields    json.RawMessage `json:"fields"`
	Values    json.RawMessage `json:"values,omitempty"`
	Messages  json.RawMessage `json:"messages,omitempty"`
	HasUpdate bool            `json:"hasUpdate"`
}

func (FormModalParams) Action() Action { return ActionOpenFormModal }

type PermissionParams struct {
	Permissions []string `json:"permissions"`
}

func (PermissionParams) Action() Action { return ActionHasPermission }

type FeatureParams struct {
	FeatureID string `json:"featureId"`
}

func (FeatureParams) Action() Action { return ActionIsFeatureEnabled }

type PublishStateParams struct {
	State json.RawMessage `json:"state"`
}

func (PublishStateParams) Action() Action { return ActionPublishState }

type LinkParams struct {
	URL    string `json:"url"`
	Target string `json:"target,omitempty"`
}

func (LinkParams) Action() Action { return ActionOpenLink }

type RouterLinkParams struct {
	URL string `json:"url"`
}

func (RouterLinkParams) Action() Action { return ActionOpenRouterLink }

type InventorySorting struct {
	Key   string `json:"key"`
	Order string `json:"order"`
}

type InventoryParams struct {
	FacetFilters       json.RawMessage    `json:"facetFilters,omitempty"`
	FullTextSearchTerm string             `json:"fullTextSearchTerm,omitempty"`
	FactSheetIDs       []string           `json:"factSheetIds,omitempty"`
	Sorting            []InventorySorting `json:"sorting,omitempty"`
}

func (InventoryParams) Action() Action { return ActionNavigateToInventory }

type LegendItem struct {
	Label       string `json:"label"`
	BgColor     string `json:"bgColor"`
	Description string `json:"description,omitempty"`
}

type LegendParams struct {
	Items []LegendItem `json:"items"`
}

func (LegendParams) Action() Action { return ActionShowLegend }

// Toastr types understood by the parent.
const (
	ToastrSuccess = "success"
	ToastrInfo    = "info"
	ToastrWarning = "warning"
	ToastrError   = "error"
)

type ToastrParams struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
}

func (ToastrParams) Action() Action { return ActionShowToastr }

type ReportEventParams struct {
	Event json.RawMessage `json:"event"`
}

func (ReportEventParams) Action() Action { return ActionTrackReportEvent }

type SidePaneParams struct {
	Elements  json.RawMessage `json:"elements"`
	HasUpdate bool            `json:"hasUpdate"`
	HasClick  bool            `json:"hasClick"`
	HasClose  bool            `json:"hasClose"`
}

func (SidePaneParams) Action() Action { return ActionOpenSidePane }

type NewTabParams struct {
	Name           string          `json:"name,omitempty"`
	State          json.RawMessage `json:"state,omitempty"`
	FacetSelection json.RawMessage `json:"facetSelection,omitempty"`
}

func (NewTabParams) Action() Action { return ActionOpenReportInNewTab }

type ExcludedFactSheetsParams struct {
	FactSheets json.RawMessage `json:"factSheets"`
}

func (ExcludedFactSheetsParams) Action() Action { return ActionSendExcludedFactSheets }

type TableConfigParams struct {
	Config json.RawMessage `json:"config"`
}

func (TableConfigParams) Action() Action { return ActionUpdateTableConfig }

type TablePopoverParams struct {
	Popover json.RawMessage `json:"popover"`
}

func (TablePopoverParams) Action() Action { return ActionShowTablePopover }

type FacetsConfigParams struct {
	Index  int             `json:"index"`
	Config json.RawMessage `json:"config"`
}

func (FacetsConfigParams) Action() Action { return ActionSetFacetsConfig }

type UIUpdateParams struct {
	Configuration json.RawMessage `json:"configuration"`
}

func (UIUpdateParams) Action() Action { return ActionUpdateUI }

type ExportDataParams struct {
	Data json.RawMessage `json:"data"`
}

func (ExportDataParams) Action() Action { return ActionExportData }

type FormModalUpdateParams struct {
	Fields   json.RawMessage `json:"fields,omitempty"`
	Values   json.RawMessage `json:"values,omitempty"`
	Messages json.RawMessage `json:"messages,omitempty"`
	Valid    *bool           `json:"valid,omitempty"`
}

func (FormModalUpdateParams) Action() Action { return ActionUpdateFormModal }
