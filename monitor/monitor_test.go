package monitor

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/reportlib/errors"
)

var jane = User{
	ID:        "u-123",
	FirstName: "Jane",
	LastName:  "Doe",
	Email:     "jane.doe@example.com",
	UserName:  "jdoe",
}

func TestMaskSensitiveData(t *testing.T) {
	in := map[string]interface{}{
		"owner": "Jane Doe",
		"contact": map[string]interface{}{
			"email": "jane.doe@example.com",
			"id":    "u-123",
		},
		"history": []interface{}{"created by jdoe", 42.0, true, nil},
		"count":   3.0,
	}

	out := MaskSensitiveData(in, jane).(map[string]interface{})

	assert.Equal(t, "*** ***", out["owner"])
	assert.Equal(t, map[string]interface{}{"email": Mask, "id": Mask}, out["contact"])
	assert.Equal(t, []interface{}{"created by ***", 42.0, true, nil}, out["history"])
	assert.Equal(t, 3.0, out["count"])

	// input untouched
	assert.Equal(t, "Jane Doe", in["owner"])
}

func TestMaskSensitiveDataWithoutUser(t *testing.T) {
	in := map[string]interface{}{"owner": "Jane"}
	assert.Equal(t, in, MaskSensitiveData(in, User{}))
}

func TestMaskJSON(t *testing.T) {
	out := MaskJSON(json.RawMessage(`{"msg":"jane.doe@example.com failed","n":1}`), jane)
	assert.JSONEq(t, `{"msg":"*** failed","n":1}`, string(out))

	out = MaskJSON(json.RawMessage(`not json from Jane`), jane)
	assert.Equal(t, `not json from ***`, string(out))
}

type recordingReporter struct {
	mu     sync.Mutex
	errors []error
	events []string
}

func (r *recordingReporter) CaptureError(err error, _ map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	return "id"
}

func (r *recordingReporter) CaptureEvent(name string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func TestRateLimited(t *testing.T) {
	next := &recordingReporter{}
	limited := RateLimited(next, 0.001, 2)

	assert.Equal(t, "id", limited.CaptureError(errors.New("a"), nil))
	limited.CaptureEvent("b", nil)
	assert.Equal(t, "", limited.CaptureError(errors.New("c"), nil))
	limited.CaptureEvent("d", nil)

	assert.Len(t, next.errors, 1)
	assert.Equal(t, []string{"b"}, next.events)
	assert.Equal(t, uint64(2), limited.Dropped())
}

func TestRateLimitedUnlimited(t *testing.T) {
	next := &recordingReporter{}
	limited := RateLimited(next, 0, 0)
	for i := 0; i < 50; i++ {
		limited.CaptureEvent("e", nil)
	}
	assert.Len(t, next.events, 50)
	assert.Zero(t, limited.Dropped())
}

func TestNop(t *testing.T) {
	assert.Equal(t, "", Nop.CaptureError(errors.New("x"), nil))
	Nop.CaptureEvent("x", nil)
}

type fakeTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (f *fakeTransport) Flush(time.Duration) bool { return true }
func (f *fakeTransport) Configure(sentry.ClientOptions) {}
func (f *fakeTransport) SendEvent(e *sentry.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeTransport) last(t *testing.T) *sentry.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

func TestSentryReporterMasksEvents(t *testing.T) {
	ft := &fakeTransport{}
	r, err := NewSentryReporter(SentryOptions{
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		ReportID:    "net.example.report",
		User:        jane,
		Transport:   ft,
		Logger:      zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)

	id := r.CaptureError(errors.New("lookup failed for jane.doe@example.com"), map[string]string{"user": "jdoe"})
	assert.NotEmpty(t, id)

	ev := ft.last(t)
	require.NotEmpty(t, ev.Exception)
	assert.Contains(t, ev.Exception[len(ev.Exception)-1].Value, Mask)
	assert.NotContains(t, ev.Exception[len(ev.Exception)-1].Value, "jane.doe@example.com")
	assert.Equal(t, Mask, ev.Tags["user"])
	assert.Equal(t, "net.example.report", ev.Tags["reportId"])
	assert.Equal(t, "test", ev.Environment)

	r.CaptureEvent("domEvent", map[string]interface{}{"target": "button by Jane"})
	ev = ft.last(t)
	assert.Equal(t, "domEvent", ev.Message)
	assert.Equal(t, "button by ***", ev.Contexts["event"]["target"])

	assert.True(t, r.Flush(time.Second))
}

func TestSentryReporterNilError(t *testing.T) {
	r, err := NewSentryReporter(SentryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", r.CaptureError(nil, nil))
}
