package report

import (
	"context"
	"encoding/json"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/wire"
)

// Correlated operations. A failure reported by the parent comes back as a
// *errors.RemoteError carrying the parent's payload unchanged.

// ExecuteGraphQL runs query with variables against the parent's GraphQL API.
// variables may be nil.
func (s *Session) ExecuteGraphQL(ctx context.Context, query string, variables interface{}, trackingKey string) (json.RawMessage, error) {
	p := wire.GraphQLParams{Query: query, TrackingKey: trackingKey}
	if variables != nil {
		// the parent expects variables as a JSON string
		raw, err := json.Marshal(variables)
		if err != nil {
			return nil, errors.Wrap(err, "encode graphql variables")
		}
		p.Variables = string(raw)
	}
	return s.m.Request(ctx, p)
}

// GetProjections queries projections. Every argument is passed through untouched.
func (s *Session) GetProjections(ctx context.Context, attributes, filters, pointsOfView json.RawMessage) (json.RawMessage, error) {
	return s.m.Request(ctx, wire.ProjectionsParams{Attributes: attributes, Filters: filters, PointsOfView: pointsOfView})
}

// GetAllFactSheets loads every fact sheet of a type matching a facet selection.
func (s *Session) GetAllFactSheets(ctx context.Context, p wire.AllFactSheetsParams) (json.RawMessage, error) {
	if p.FactSheetType == "" {
		return nil, errors.NewInvalidRequestError("getAllFactSheets: factSheetType is required")
	}
	return s.m.Request(ctx, p)
}

// GetMetricsMeasurements lists the available metrics measurements.
func (s *Session) GetMetricsMeasurements(ctx context.Context, nameOnly bool) (json.RawMessage, error) {
	return s.m.Request(ctx, wire.MetricsMeasurementsParams{NameOnly: nameOnly})
}

// GetMetricsRawSeries runs a raw metrics query.
func (s *Session) GetMetricsRawSeries(ctx context.Context, query string) (json.RawMessage, error) {
	return s.m.Request(ctx, wire.MetricsRawSeriesParams{Query: query})
}

// ExecuteParentOriginXHR has the parent perform an HTTP request against its own origin.
func (s *Session) ExecuteParentOriginXHR(ctx context.Context, p wire.XHRParams) (json.RawMessage, error) {
	switch p.Method {
	case "GET", "POST", "PUT":
	default:
		return nil, errors.NewInvalidRequestError("executeParentOriginXHR: unsupported method %q", p.Method)
	}
	if p.Path == "" {
		return nil, errors.NewInvalidRequestError("executeParentOriginXHR: path is required")
	}
	return s.m.Request(ctx, p)
}

// RequestFactSheetSelection asks the user to pick fact sheets. ok is false
// when the user cancelled.
func (s *Session) RequestFactSheetSelection(ctx context.Context, p wire.FactSheetSelectionParams) (selection json.RawMessage, ok bool, err error) {
	data, err := s.m.Request(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if isFalse(data) {
		return nil, false, nil
	}
	return data, true, nil
}

// HasPermission asks whether the current user holds each permission.
func (s *Session) HasPermission(ctx context.Context, permissions ...string) (map[string]bool, error) {
	if len(permissions) == 0 {
		return map[string]bool{}, nil
	}
	data, err := s.m.Request(ctx, wire.PermissionParams{Permissions: permissions})
	if err != nil {
		return nil, err
	}
	granted, err := decodePermissions(permissions, data)
	if err != nil {
		return nil, errors.Wrap(err, "hasPermission")
	}
	return granted, nil
}

// decodePermissions accepts the parent's answer as either a list of booleans
// in request order or an object keyed by permission.
func decodePermissions(permissions []string, data json.RawMessage) (map[string]bool, error) {
	granted := make(map[string]bool, len(permissions))

	var list []bool
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != len(permissions) {
			return nil, errors.Wrapf(errors.ErrMalformedEnvelope, "got %d answers for %d permissions", len(list), len(permissions))
		}
		for i, p := range permissions {
			granted[p] = list[i]
		}
		return granted, nil
	}

	var byName map[string]bool
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedEnvelope, "permission answer: %v", err)
	}
	for _, p := range permissions {
		granted[p] = byName[p]
	}
	return granted, nil
}

// IsFeatureEnabled asks the parent whether a workspace feature is enabled.
func (s *Session) IsFeatureEnabled(ctx context.Context, featureID string) (bool, error) {
	data, err := s.m.Request(ctx, wire.FeatureParams{FeatureID: featureID})
	if err != nil {
		return false, err
	}
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err != nil {
		return false, errors.Wrapf(errors.ErrMalformedEnvelope, "isFeatureEnabled answer: %v", err)
	}
	return enabled, nil
}

// Fire-and-forget operations.

// PublishState stores state with the report's bookmark.
func (s *Session) PublishState(ctx context.Context, state interface{}) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	if err := s.m.Notify(ctx, wire.PublishStateParams{State: raw}); err != nil {
		return err
	}
	s.mu.Lock()
	s.published = raw
	s.mu.Unlock()
	return nil
}

// OpenLink opens url in the parent. target defaults to a new window.
func (s *Session) OpenLink(ctx context.Context, url, target string) error {
	return s.m.Notify(ctx, wire.LinkParams{URL: url, Target: target})
}

// OpenRouterLink navigates the parent application to an internal route.
func (s *Session) OpenRouterLink(ctx context.Context, url string) error {
	return s.m.Notify(ctx, wire.RouterLinkParams{URL: url})
}

// NavigateToInventory opens the inventory with the given filters.
func (s *Session) NavigateToInventory(ctx context.Context, p wire.InventoryParams) error {
	return s.m.Notify(ctx, p)
}

func (s *Session) ShowSpinner(ctx context.Context) error {
	return s.m.Notify(ctx, wire.Signal{Name: wire.ActionShowSpinner})
}

func (s *Session) HideSpinner(ctx context.Context) error {
	return s.m.Notify(ctx, wire.Signal{Name: wire.ActionHideSpinner})
}

// ShowLegend replaces the legend shown below the report.
func (s *Session) ShowLegend(ctx context.Context, items []wire.LegendItem) error {
	return s.m.Notify(ctx, wire.LegendParams{Items: items})
}

// ShowToastr shows a notification. kind is one of the wire.Toastr* types.
func (s *Session) ShowToastr(ctx context.Context, kind, message, title string) error {
	switch kind {
	case wire.ToastrSuccess, wire.ToastrInfo, wire.ToastrWarning, wire.ToastrError:
	default:
		return errors.NewInvalidRequestError("showToastr: unknown type %q", kind)
	}
	return s.m.Notify(ctx, wire.ToastrParams{Type: kind, Message: message, Title: title})
}

// TrackReportEvent records a usage event.
func (s *Session) TrackReportEvent(ctx context.Context, event interface{}) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode report event")
	}
	return s.m.Notify(ctx, wire.ReportEventParams{Event: raw})
}

// OpenReportInNewTab opens another instance of this report seeded with state.
func (s *Session) OpenReportInNewTab(ctx context.Context, name string, state, facetSelection json.RawMessage) error {
	return s.m.Notify(ctx, wire.NewTabParams{Name: name, State: state, FacetSelection: facetSelection})
}

// SendExcludedFactSheets tells the parent which fact sheets the report left out.
func (s *Session) SendExcludedFactSheets(ctx context.Context, factSheets json.RawMessage) error {
	return s.m.Notify(ctx, wire.ExcludedFactSheetsParams{FactSheets: factSheets})
}

// UpdateTableConfig replaces the table view configuration.
func (s *Session) UpdateTableConfig(ctx context.Context, tc TableConfig) error {
	raw, err := json.Marshal(tc)
	if err != nil {
		return errors.Wrap(err, "encode table config")
	}
	return s.m.Notify(ctx, wire.TableConfigParams{Config: raw})
}

// ShowEditToggle shows the edit toggle. It requires AllowEditing.
func (s *Session) ShowEditToggle(ctx context.Context) error {
	if cfg := s.Configuration(); cfg == nil || !cfg.AllowEditing {
		return errors.NewInvalidStateError("showEditToggle requires allowEditing in the configuration")
	}
	return s.m.Notify(ctx, wire.Signal{Name: wire.ActionShowEditToggle})
}

func (s *Session) HideEditToggle(ctx context.Context) error {
	return s.m.Notify(ctx, wire.Signal{Name: wire.ActionHideEditToggle})
}

func isFalse(data json.RawMessage) bool {
	var b bool
	return json.Unmarshal(data, &b) == nil && !b
}
