package host_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reportlib/am"
	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/host"
	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/report"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/wire"
)

const testFixture = `{
  "setup": {
    "reportId": "net.example.matrix",
    "bookmarkName": "Matrix",
    "settings": {
      "language": "en",
      "currentUser": {"id": "u-1", "firstName": "Ada"},
      "workspace": {"id": "ws-1", "name": "Demo"},
      "features": [{"id": "integration.signavio", "status": "ENABLED"}]
    }
  },
  "permissions": {"READ": true, "DELETE": false},
  "responses": {"getMetricsMeasurements": [{"name": "cost"}]},
  "failures": {"executeParentOriginXHR": "denied"}
}`

func newHost(t *testing.T, cfg am.HostConfig) *host.Host {
	t.Helper()
	if cfg.VersionConstraint == "" {
		cfg.VersionConstraint = ">= 1.0.0, < 2.0.0"
	}
	f, err := host.ParseFixture([]byte(testFixture))
	require.NoError(t, err)

	h, err := host.New(cfg, host.WithFixture(f), host.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func serve(t *testing.T, h *host.Host) string {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, wsURL string, opts ...report.SessionOption) *report.Session {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, wsURL, transport.DialOptions{
		Origin:  "http://localhost",
		Options: transport.Options{Logger: log},
	})
	require.NoError(t, err)

	m := messenger.New(conn, messenger.WithLogger(log))
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(runCtx)
	}()
	t.Cleanup(func() {
		stop()
		m.Close()
		<-done
	})

	return report.NewSession(m, append([]report.SessionOption{report.WithLogger(log)}, opts...)...)
}

func TestSessionAgainstHost(t *testing.T) {
	h := newHost(t, am.HostConfig{})
	wsURL := serve(t, h)
	s := connect(t, wsURL)
	ctx := context.Background()

	setup, err := s.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, "net.example.matrix", setup.ReportID)
	assert.Equal(t, transport.OriginFromURL(wsURL), setup.Settings.BaseURL, "host fills in its own base url")
	assert.Equal(t, transport.OriginFromURL(wsURL), s.Messenger().ParentOrigin())

	require.NoError(t, s.Ready(ctx, &report.Configuration{Facets: []report.FacetsConfig{{Key: "main"}}}))

	granted, err := s.HasPermission(ctx, "READ", "DELETE", "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"READ": true, "DELETE": false, "ADMIN": false}, granted)

	enabled, err := s.IsFeatureEnabled(ctx, "integration.signavio")
	require.NoError(t, err)
	assert.True(t, enabled)
	enabled, err = s.IsFeatureEnabled(ctx, "integration.other")
	require.NoError(t, err)
	assert.False(t, enabled)

	metrics, err := s.GetMetricsMeasurements(ctx, true)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"cost"}]`, string(metrics))

	_, err = s.ExecuteParentOriginXHR(ctx, wire.XHRParams{Method: "GET", Path: "/services/x"})
	require.Error(t, err)
	var remote *errors.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "denied", remote.Message())

	_, err = s.ExecuteGraphQL(ctx, "{ allFactSheets { totalCount } }", nil, "")
	require.Error(t, err, "no handler and no canned response")
	assert.True(t, errors.Is(err, errors.ErrRemoteFailure))
	assert.Contains(t, err.Error(), "unsupported action executeGraphQL")

	h.Handle(wire.ActionExecuteGraphQL, func(_ context.Context, req host.Request) (interface{}, error) {
		p := req.Params.(wire.GraphQLParams)
		return map[string]interface{}{"query": p.Query, "variables": json.RawMessage(p.Variables)}, nil
	})
	data, err := s.ExecuteGraphQL(ctx, "query Q($n: Int)", map[string]int{"n": 3}, "t")
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"query Q($n: Int)","variables":{"n":3}}`, string(data))
}

func TestHostRecordsNotifications(t *testing.T) {
	h := newHost(t, am.HostConfig{})
	s := connect(t, serve(t, h))
	ctx := context.Background()

	got := make(chan host.Notification, 8)
	h.OnNotify(func(n host.Notification) { got <- n })

	_, err := s.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx, &report.Configuration{}))
	require.NoError(t, s.ShowToastr(ctx, wire.ToastrInfo, "saved", ""))

	var actions []wire.Action
	for len(actions) < 2 {
		select {
		case n := <-got:
			actions = append(actions, n.Action)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", actions)
		}
	}
	assert.Equal(t, []wire.Action{wire.ActionReady, wire.ActionShowToastr}, actions)

	notes := h.Notifications()
	require.Len(t, notes, 2)
	toastr, ok := notes[1].Params.(wire.ToastrParams)
	require.True(t, ok)
	assert.Equal(t, "saved", toastr.Message)
}

func TestHostBroadcastReachesCallbacks(t *testing.T) {
	h := newHost(t, am.HostConfig{})
	s := connect(t, serve(t, h))
	ctx := context.Background()

	results := make(chan json.RawMessage, 1)
	_, err := s.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx, &report.Configuration{Facets: []report.FacetsConfig{{
		Key:      "main",
		Callback: func(data json.RawMessage) { results <- data },
	}}}))

	sent, err := h.Broadcast(wire.ChannelFacetsResult, map[string]interface{}{
		"facetKey": "main",
		"data":     []map[string]string{{"id": "fs-1"}},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	select {
	case data := <-results:
		assert.JSONEq(t, `[{"id":"fs-1"}]`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("facet callback not called")
	}
}

func TestHostRejectsIncompatibleLibrary(t *testing.T) {
	h := newHost(t, am.HostConfig{})
	s := connect(t, serve(t, h), report.WithLibraryVersion("2.3.0"))

	_, err := s.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteFailure))
	assert.Contains(t, err.Error(), "incompatible version")
	assert.Equal(t, report.StateUninitialized, s.State())
}

func TestHostRejectsForeignOrigin(t *testing.T) {
	h := newHost(t, am.HostConfig{AllowedOrigins: []string{"https://parent.example.com"}})
	wsURL := serve(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := transport.Dial(ctx, wsURL, transport.DialOptions{Origin: "https://evil.example.com"})
	require.Error(t, err)
	assert.Zero(t, h.ClientCount())
}

func TestLoadFixtureYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	content := `
setup:
  reportId: net.example.yaml
  settings:
    features:
      - id: beta
        status: ENABLED
permissions:
  READ: true
responses:
  getMetricsRawSeries:
    series: [1, 2, 3]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f, err := host.LoadFixture(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reportId":"net.example.yaml","settings":{"features":[{"id":"beta","status":"ENABLED"}]}}`, string(f.Setup))
	assert.True(t, f.Permissions["READ"])
	assert.JSONEq(t, `{"series":[1,2,3]}`, string(f.Responses["getMetricsRawSeries"]))
}

func TestParseFixtureRequiresReportID(t *testing.T) {
	_, err := host.ParseFixture([]byte(`{"setup": {"settings": {}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reportId")

	_, err = host.ParseFixture([]byte(`{"permissions": {}}`))
	require.Error(t, err)
}

func TestHostReloadsFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0644))

	h, err := host.New(am.HostConfig{
		Addr:         "127.0.0.1:0",
		Fixture:      path,
		WatchFixture: true,
	}, host.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	require.NoError(t, h.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	s := connect(t, "ws://"+h.Addr()+"/ws")
	ctx := context.Background()
	_, err = s.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx, &report.Configuration{}))

	updated := strings.Replace(testFixture, `"bookmarkName": "Matrix"`, `"bookmarkName": "Matrix v2"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		return s.CurrentSetup().BookmarkName == "Matrix v2"
	}, 5*time.Second, 50*time.Millisecond)
}
