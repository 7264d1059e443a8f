package hostfuncs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageRequestWireRoundTrip(t *testing.T) {
	req := StorageRequestWire{Key: "k", Value: []byte("v"), Mode: "prefix:foo", DB: "shared1"}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got StorageRequestWire
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req, got)
}

func TestStorageRequestWireOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(StorageRequestWire{Key: "k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k"}`, string(data))
}

func TestCacheResponseWireRoundTrip(t *testing.T) {
	resp := CacheResponseWire{Value: []byte("v"), Found: true, Evicted: true, EvictedKey: "old"}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var got CacheResponseWire
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, resp, got)
}

func TestNetworkRequestWireRoundTrip(t *testing.T) {
	req := NetworkRequestWire{
		Name:            "slack",
		URLVars:         map[string]string{"team": "eng"},
		BodyVars:        map[string]string{"text": "hi"},
		HeadersOverride: map[string]string{"X-Custom": "1"},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got NetworkRequestWire
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req, got)
}

func TestLogBackRequestWireRoundTrip(t *testing.T) {
	req := LogBackRequestWire{LogType: "incident", Payload: []byte("payload"), Delay: 30}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got LogBackRequestWire
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req, got)
}
