package report_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/report"
	"github.com/teranos/reportlib/wire"
)

type call[T any] struct {
	v   T
	err error
}

func async[T any](fn func() (T, error)) <-chan call[T] {
	ch := make(chan call[T], 1)
	go func() {
		v, err := fn()
		ch <- call[T]{v, err}
	}()
	return ch
}

func TestExecuteGraphQLEncodesVariablesAsString(t *testing.T) {
	f := initialized(t)

	res := async(func() (json.RawMessage, error) {
		return f.session.ExecuteGraphQL(context.Background(), "query($id: ID!) { factSheet(id: $id) { name } }", map[string]string{"id": "fs-1"}, "matrix")
	})

	out := f.peer.Next()
	require.Equal(t, string(wire.ActionExecuteGraphQL), out.Action)
	require.NotEmpty(t, out.ID)
	p, err := wire.DecodeParams(out)
	require.NoError(t, err)
	gql := p.(wire.GraphQLParams)
	assert.Equal(t, `{"id":"fs-1"}`, gql.Variables)
	assert.Equal(t, "matrix", gql.TrackingKey)

	f.peer.Reply(out.ID, map[string]interface{}{"factSheet": map[string]string{"name": "CRM"}})

	r := receive(t, res)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"factSheet":{"name":"CRM"}}`, string(r.v))
}

func TestCorrelatedFailureIsRemoteError(t *testing.T) {
	f := initialized(t)

	res := async(func() (json.RawMessage, error) {
		return f.session.GetMetricsRawSeries(context.Background(), "select *")
	})
	out := f.peer.Next()
	f.peer.Fail(out.ID, map[string]string{"message": "denied"})

	r := receive(t, res)
	require.Error(t, r.err)
	assert.True(t, errors.IsRemoteFailure(r.err))
	assert.Contains(t, r.err.Error(), "denied")

	var remote *errors.RemoteError
	require.True(t, errors.As(r.err, &remote))
	assert.JSONEq(t, `{"message":"denied"}`, string(remote.Data))
}

func TestHasPermissionAcceptsListAndObject(t *testing.T) {
	f := initialized(t)

	res := async(func() (map[string]bool, error) {
		return f.session.HasPermission(context.Background(), "READ", "WRITE")
	})
	out := f.peer.Next()
	assert.JSONEq(t, `{"permissions":["READ","WRITE"]}`, string(out.Params))
	f.peer.Reply(out.ID, []bool{true, false})
	r := receive(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, map[string]bool{"READ": true, "WRITE": false}, r.v)

	res = async(func() (map[string]bool, error) {
		return f.session.HasPermission(context.Background(), "READ")
	})
	out = f.peer.Next()
	f.peer.Reply(out.ID, map[string]bool{"READ": true})
	r = receive(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, map[string]bool{"READ": true}, r.v)

	res = async(func() (map[string]bool, error) {
		return f.session.HasPermission(context.Background(), "READ", "WRITE")
	})
	out = f.peer.Next()
	f.peer.Reply(out.ID, []bool{true})
	r = receive(t, res)
	assert.True(t, errors.Is(r.err, errors.ErrMalformedEnvelope))
}

func TestIsFeatureEnabled(t *testing.T) {
	f := initialized(t)

	res := async(func() (bool, error) {
		return f.session.IsFeatureEnabled(context.Background(), "matrix")
	})
	out := f.peer.Next()
	assert.JSONEq(t, `{"featureId":"matrix"}`, string(out.Params))
	f.peer.Reply(out.ID, true)

	r := receive(t, res)
	require.NoError(t, r.err)
	assert.True(t, r.v)
}

func TestRequestFactSheetSelectionCancelled(t *testing.T) {
	f := initialized(t)

	res := async(func() (bool, error) {
		_, ok, err := f.session.RequestFactSheetSelection(context.Background(), wire.FactSheetSelectionParams{Mode: "single"})
		return ok, err
	})
	out := f.peer.Next()
	f.peer.Reply(out.ID, false)

	r := receive(t, res)
	require.NoError(t, r.err)
	assert.False(t, r.v)
}

func TestArgumentValidation(t *testing.T) {
	f := initialized(t)
	ctx := context.Background()

	_, err := f.session.GetAllFactSheets(ctx, wire.AllFactSheetsParams{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = f.session.ExecuteParentOriginXHR(ctx, wire.XHRParams{Method: "DELETE", Path: "/x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = f.session.ExecuteParentOriginXHR(ctx, wire.XHRParams{Method: "GET"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	err = f.session.ShowToastr(ctx, "loud", "hi", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	err = f.session.ShowEditToggle(ctx)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	_, _, err = f.session.OpenFormModal(ctx, report.FormModal{}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	granted, err := f.session.HasPermission(ctx)
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestFireAndForgetOperations(t *testing.T) {
	f := ready(t, &report.Configuration{AllowEditing: true})
	ctx := context.Background()

	tests := []struct {
		name   string
		send   func() error
		action wire.Action
		params string
	}{
		{"publish state", func() error { return f.session.PublishState(ctx, map[string]int{"zoom": 3}) }, wire.ActionPublishState, `{"state":{"zoom":3}}`},
		{"open link", func() error { return f.session.OpenLink(ctx, "https://example.com", "_blank") }, wire.ActionOpenLink, `{"url":"https://example.com","target":"_blank"}`},
		{"router link", func() error { return f.session.OpenRouterLink(ctx, "/inventory") }, wire.ActionOpenRouterLink, `{"url":"/inventory"}`},
		{"inventory", func() error {
			return f.session.NavigateToInventory(ctx, wire.InventoryParams{FactSheetIDs: []string{"a"}})
		}, wire.ActionNavigateToInventory, `{"factSheetIds":["a"]}`},
		{"show spinner", func() error { return f.session.ShowSpinner(ctx) }, wire.ActionShowSpinner, ``},
		{"hide spinner", func() error { return f.session.HideSpinner(ctx) }, wire.ActionHideSpinner, ``},
		{"legend", func() error {
			return f.session.ShowLegend(ctx, []wire.LegendItem{{Label: "High", BgColor: "#f00"}})
		}, wire.ActionShowLegend, `{"items":[{"label":"High","bgColor":"#f00"}]}`},
		{"toastr", func() error { return f.session.ShowToastr(ctx, wire.ToastrInfo, "Saved", "") }, wire.ActionShowToastr, `{"type":"info","message":"Saved"}`},
		{"track", func() error { return f.session.TrackReportEvent(ctx, map[string]string{"name": "zoom"}) }, wire.ActionTrackReportEvent, `{"event":{"name":"zoom"}}`},
		{"new tab", func() error {
			return f.session.OpenReportInNewTab(ctx, "Copy", json.RawMessage(`{"a":1}`), nil)
		}, wire.ActionOpenReportInNewTab, `{"name":"Copy","state":{"a":1}}`},
		{"excluded", func() error {
			return f.session.SendExcludedFactSheets(ctx, json.RawMessage(`[{"id":"x"}]`))
		}, wire.ActionSendExcludedFactSheets, `{"factSheets":[{"id":"x"}]}`},
		{"table config", func() error {
			return f.session.UpdateTableConfig(ctx, report.TableConfig{FactSheetType: "Application", Attributes: []report.TableAttribute{{Field: "name"}}})
		}, wire.ActionUpdateTableConfig, `{"config":{"factSheetType":"Application","attributes":["name"]}}`},
		{"show edit toggle", func() error { return f.session.ShowEditToggle(ctx) }, wire.ActionShowEditToggle, ``},
		{"hide edit toggle", func() error { return f.session.HideEditToggle(ctx) }, wire.ActionHideEditToggle, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.send())
			out := f.peer.Next()
			assert.Equal(t, string(tt.action), out.Action)
			assert.Empty(t, out.ID)
			if tt.params == "" {
				assert.Empty(t, out.Params)
			} else {
				assert.JSONEq(t, tt.params, string(out.Params))
			}
		})
	}

	assert.JSONEq(t, `{"zoom":3}`, string(f.session.LatestPublishedState()))
}

func TestOpenFormModalWithUpdates(t *testing.T) {
	valid := false
	f := ready(t, &report.Configuration{})

	res := async(func() (json.RawMessage, error) {
		values, ok, err := f.session.OpenFormModal(context.Background(), report.FormModal{
			Fields: json.RawMessage(`{"level":{"type":"SingleSelect"}}`),
			Values: json.RawMessage(`{"level":"1"}`),
		}, func(form report.FormModal) *report.FormModal {
			form.Valid = &valid
			form.Messages = json.RawMessage(`{"level":{"type":"error","message":"pick 2"}}`)
			return &form
		})
		if !ok && err == nil {
			return nil, errors.New("cancelled")
		}
		return values, err
	})

	out := f.peer.Next()
	require.Equal(t, string(wire.ActionOpenFormModal), out.Action)
	p, err := wire.DecodeParams(out)
	require.NoError(t, err)
	assert.True(t, p.(wire.FormModalParams).HasUpdate)

	f.peer.Broadcast(wire.ChannelFormModalUpdate, map[string]interface{}{
		"fields": map[string]interface{}{"level": map[string]string{"type": "SingleSelect"}},
		"values": map[string]string{"level": "1"},
	})
	upd := f.peer.Next()
	require.Equal(t, string(wire.ActionUpdateFormModal), upd.Action)
	assert.JSONEq(t, `{
		"fields":{"level":{"type":"SingleSelect"}},
		"values":{"level":"1"},
		"messages":{"level":{"type":"error","message":"pick 2"}},
		"valid":false
	}`, string(upd.Params))

	f.peer.Reply(out.ID, map[string]string{"level": "2"})
	r := receive(t, res)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"level":"2"}`, string(r.v))

	// no modal open, updates are ignored
	f.peer.Broadcast(wire.ChannelFormModalUpdate, map[string]interface{}{"values": map[string]string{}})
	f.peer.Flush()
}

func TestOpenFormModalCancelled(t *testing.T) {
	f := ready(t, &report.Configuration{})

	res := async(func() (bool, error) {
		_, ok, err := f.session.OpenFormModal(context.Background(), report.FormModal{Fields: json.RawMessage(`{}`)}, nil)
		return ok, err
	})
	out := f.peer.Next()
	f.peer.Reply(out.ID, false)

	r := receive(t, res)
	require.NoError(t, r.err)
	assert.False(t, r.v)
}

func TestSidePaneHandlers(t *testing.T) {
	f := ready(t, &report.Configuration{})

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	err := f.session.OpenSidePane(context.Background(), json.RawMessage(`{"details":{"type":"FactSheet"}}`), report.SidePaneHandlers{
		Update: func(json.RawMessage) { record("update") },
		Click:  func(c report.SidePaneClick) { record("click:" + c.ID) },
		Close:  func() { record("close") },
	})
	require.NoError(t, err)

	out := f.peer.Next()
	require.Equal(t, string(wire.ActionOpenSidePane), out.Action)
	assert.JSONEq(t, `{"elements":{"details":{"type":"FactSheet"}},"hasUpdate":true,"hasClick":true,"hasClose":true}`, string(out.Params))

	f.peer.Broadcast(wire.ChannelSidePaneFieldUpdate, map[string]string{"field": "name"})
	f.peer.Broadcast(wire.ChannelSidePaneClick, map[string]string{"id": "details"})
	f.peer.Broadcast(wire.ChannelSidePaneClose, nil)
	f.peer.Broadcast(wire.ChannelSidePaneClick, map[string]string{"id": "after-close"})
	f.peer.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"update", "click:details", "close"}, events)
}

func TestTableHelpers(t *testing.T) {
	f := ready(t, &report.Configuration{Facets: []report.FacetsConfig{{Key: "main"}}})
	ctx := context.Background()

	require.NoError(t, f.session.Table().ShowPopover(ctx, json.RawMessage(`{"id":"fs-1"}`)))
	out := f.peer.Next()
	assert.Equal(t, string(wire.ActionShowTablePopover), out.Action)
	assert.JSONEq(t, `{"popover":{"id":"fs-1"}}`, string(out.Params))

	require.NoError(t, f.session.Table().HidePopover(ctx))
	assert.Equal(t, string(wire.ActionHideTablePopover), f.peer.Next().Action)

	require.NoError(t, f.session.Table().SetFacetsConfig(ctx, 0, report.FacetsConfig{Key: "main", Attributes: []string{"name"}}))
	out = f.peer.Next()
	assert.Equal(t, string(wire.ActionSetFacetsConfig), out.Action)
	assert.JSONEq(t, `{"index":0,"config":{"key":"main","attributes":["name"]}}`, string(out.Params))

	err := f.session.Table().SetFacetsConfig(ctx, 0, report.FacetsConfig{Key: "main"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	err = f.session.Table().SetFacetsConfig(ctx, 3, report.FacetsConfig{Key: "main", Attributes: []string{"name"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
