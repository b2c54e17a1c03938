package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/reportlib/errors"
)

func TestBuildOutbound(t *testing.T) {
	out, err := buildOutbound([]string{"isFeatureEnabled", `{"featureId":"beta"}`})
	require.NoError(t, err)
	assert.Equal(t, "isFeatureEnabled", out.Action)
	assert.Empty(t, out.ID)
	assert.JSONEq(t, `{"featureId":"beta"}`, string(out.Params))

	out, err = buildOutbound([]string{"customAction", `[1,2]`})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(out.Params), "unknown actions pass through")

	_, err = buildOutbound([]string{"executeGraphQL", `{nope`})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = buildOutbound([]string{"showSpinner"})
	assert.Error(t, err, "signals have no answer to wait for")
}
