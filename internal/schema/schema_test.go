package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spawnRequest struct {
	Prefab string  `json:"prefab"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Tag    string  `json:"tag,omitempty"`
}

func TestFor_ValidatesInferredSchema(t *testing.T) {
	v, err := For[spawnRequest]()
	require.NoError(t, err)
	require.NotNil(t, v.Schema())

	require.NoError(t, v.Validate(json.RawMessage(`{"prefab":"crate","x":1,"y":2.5}`)))
	require.NoError(t, v.Validate(json.RawMessage(`{"prefab":"crate","x":1,"y":2,"tag":"loot"}`)))

	require.ErrorContains(t, v.Validate(json.RawMessage(`{"prefab":"crate","x":1}`)), "does not match schema")
	require.ErrorContains(t, v.Validate(json.RawMessage(`{"prefab":7,"x":1,"y":2}`)), "does not match schema")
	require.Error(t, v.Validate(nil), "absent payload is null, not an object")
}

func TestValidate_RejectsInvalidJSON(t *testing.T) {
	v, err := For[string]()
	require.NoError(t, err)

	require.NoError(t, v.Validate(json.RawMessage(`"hello"`)))
	require.ErrorContains(t, v.Validate(json.RawMessage(`{`)), "not valid JSON")
}

func TestSimpleSchema(t *testing.T) {
	s := SimpleSchema(map[string]string{
		"name":  "string",
		"count": "int",
		"ratio": "float64",
		"on":    "bool",
		"tags":  "[]string",
		"extra": "object",
	})

	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"count", "extra", "name", "on", "ratio", "tags"}, s.Required)
	assert.Equal(t, "string", s.Properties["name"].Type)
	assert.Equal(t, "integer", s.Properties["count"].Type)
	assert.Equal(t, "number", s.Properties["ratio"].Type)
	assert.Equal(t, "boolean", s.Properties["on"].Type)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
	assert.Equal(t, "object", s.Properties["extra"].Type)

	v, err := New(s)
	require.NoError(t, err)

	require.NoError(t, v.Validate(json.RawMessage(
		`{"name":"a","count":2,"ratio":0.5,"on":true,"tags":["x"],"extra":{}}`,
	)))
	require.Error(t, v.Validate(json.RawMessage(
		`{"name":"a","count":2.5,"ratio":0.5,"on":true,"tags":["x"],"extra":{}}`,
	)))
}

func TestSimpleSchema_UnknownTypeDefaultsToString(t *testing.T) {
	s := SimpleSchema(map[string]string{"when": "time.Time"})

	assert.Equal(t, "string", s.Properties["when"].Type)
}
