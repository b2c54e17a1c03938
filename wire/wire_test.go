package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/reportlib/errors"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		wantID    string
		wantFail  bool
		wantEmpty bool
	}{
		{name: "success reply", payload: `{"id":"rpc-1","data":{"b":2},"success":true}`, wantID: "rpc-1"},
		{name: "failure reply", payload: `{"id":"rpc-2","data":"denied","success":false}`, wantID: "rpc-2", wantFail: true},
		{name: "channel event without success", payload: `{"id":"setup","data":{}}`, wantID: "setup"},
		{name: "no id", payload: `{"data":1}`, wantEmpty: true},
		{name: "array", payload: `[1,2]`, wantErr: true},
		{name: "string", payload: `"hello"`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
		{name: "bad success type", payload: `{"id":"x","success":"yes"}`, wantErr: true},
		{name: "truncated", payload: `{"id":"x"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseInbound([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrMalformedEnvelope))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, in.ID)
			assert.Equal(t, tt.wantFail, in.Failed())
			if tt.wantEmpty {
				assert.Empty(t, in.ID)
			}
		})
	}
}

func TestParseOutboundRequiresAction(t *testing.T) {
	_, err := ParseOutbound([]byte(`{"params":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedEnvelope))

	out, err := ParseOutbound([]byte(`{"action":"a","params":{"x":1},"id":"rpc-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", out.Action)
	assert.Equal(t, "rpc-9", out.ID)
	assert.JSONEq(t, `{"x":1}`, string(out.Params))
}

func TestOutboundEncodeOmitsEmptyFields(t *testing.T) {
	data, err := Outbound{Action: "showSpinner"}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"showSpinner"}`, string(data))

	_, err = Outbound{}.Encode()
	assert.Error(t, err)
}

func TestNewOutbound(t *testing.T) {
	out, err := NewOutbound(GraphQLParams{Query: "{ allFactSheets { totalCount } }"}, "rpc-1")
	require.NoError(t, err)
	assert.Equal(t, "executeGraphQL", out.Action)
	assert.Equal(t, "rpc-1", out.ID)
	assert.JSONEq(t, `{"query":"{ allFactSheets { totalCount } }"}`, string(out.Params))

	out, err = NewOutbound(Signal{Name: ActionShowSpinner}, "")
	require.NoError(t, err)
	assert.Nil(t, out.Params)

	out, err = NewOutbound(Requirements{Raw: json.RawMessage(`{"facets":[]}`)}, "")
	require.NoError(t, err)
	assert.Equal(t, "ready", out.Action)
	assert.JSONEq(t, `{"facets":[]}`, string(out.Params))

	out, err = NewOutbound(Requirements{Update: true}, "")
	require.NoError(t, err)
	assert.Equal(t, "updateRequirements", out.Action)
	assert.JSONEq(t, `{}`, string(out.Params))
}

func TestDecodeParams(t *testing.T) {
	out, err := NewOutbound(PermissionParams{Permissions: []string{"READ", "WRITE"}}, "rpc-3")
	require.NoError(t, err)

	p, err := DecodeParams(out)
	require.NoError(t, err)
	perm, ok := p.(PermissionParams)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, []string{"READ", "WRITE"}, perm.Permissions)

	p, err = DecodeParams(Outbound{Action: "ready", Params: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	req := p.(Requirements)
	assert.False(t, req.Update)
	assert.JSONEq(t, `{"a":1}`, string(req.Raw))

	p, err = DecodeParams(Outbound{Action: "hideSpinner"})
	require.NoError(t, err)
	assert.Equal(t, Signal{Name: ActionHideSpinner}, p)

	_, err = DecodeParams(Outbound{Action: "hasPermission", Params: json.RawMessage(`{"permissions":"all"}`)})
	assert.True(t, errors.Is(err, errors.ErrMalformedEnvelope))
}

func TestDecodeParamsPreservesUnknownActions(t *testing.T) {
	out := Outbound{Action: "somethingNew", Params: json.RawMessage(`{"z":true}`)}
	assert.False(t, Known(out.Action))

	p, err := DecodeParams(out)
	require.NoError(t, err)
	opaque, ok := p.(Opaque)
	require.True(t, ok)
	assert.Equal(t, Action("somethingNew"), opaque.Action())

	again, err := NewOutbound(opaque, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":true}`, string(again.Params))
}

func TestReplyAndFail(t *testing.T) {
	in, err := Reply("rpc-1", map[string]int{"b": 2})
	require.NoError(t, err)
	assert.False(t, in.Failed())
	assert.JSONEq(t, `{"b":2}`, string(in.Data))

	in, err = Fail("rpc-2", "denied")
	require.NoError(t, err)
	assert.True(t, in.Failed())
	assert.JSONEq(t, `"denied"`, string(in.Data))

	in = FailMessage("rpc-3", "unsupported action")
	assert.True(t, in.Failed())
	assert.JSONEq(t, `{"message":"unsupported action"}`, string(in.Data))
}

func TestCorrelationNamespace(t *testing.T) {
	assert.True(t, IsCorrelation("rpc-abc"))
	for _, ch := range Channels {
		assert.False(t, IsCorrelation(ch.ID()), ch)
	}
}
