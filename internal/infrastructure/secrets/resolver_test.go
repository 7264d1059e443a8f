package secrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverResolvesFromFile(t *testing.T) {
	r := NewResolver(map[string]string{"SLACK_TOKEN": "xoxb-file"}, "PLAID_SECRET_")

	v, err := r.Resolve("SLACK_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-file", v)
}

func TestResolverEnvOverridesFile(t *testing.T) {
	t.Setenv("PLAID_SECRET_SLACK_TOKEN", "xoxb-env")
	r := NewResolver(map[string]string{"SLACK_TOKEN": "xoxb-file"}, "PLAID_SECRET_")

	v, err := r.Resolve("SLACK_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-env", v)
}

func TestResolverMissingKey(t *testing.T) {
	r := NewResolver(map[string]string{}, "PLAID_SECRET_")

	_, err := r.Resolve("MISSING")
	assert.Error(t, err)
	assert.False(t, r.Has("MISSING"))
}

func TestResolverHasChecksEnvAndFile(t *testing.T) {
	r := NewResolver(map[string]string{"A": "1"}, "PLAID_SECRET_")
	assert.True(t, r.Has("A"))

	t.Setenv("PLAID_SECRET_B", "2")
	assert.True(t, r.Has("B"))
}

func TestResolverEmptyEnvPrefixNeverConsultsEnv(t *testing.T) {
	os.Unsetenv("SLACK_TOKEN")
	t.Setenv("SLACK_TOKEN", "leaked")
	r := NewResolver(map[string]string{"SLACK_TOKEN": "file-value"}, "")

	v, err := r.Resolve("SLACK_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "file-value", v)
}

func TestResolverCopiesInputMap(t *testing.T) {
	values := map[string]string{"A": "1"}
	r := NewResolver(values, "PLAID_SECRET_")

	values["A"] = "mutated-after-construction"

	v, err := r.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
