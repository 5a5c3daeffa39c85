package openapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	r := NewRegistry()
	r.Register(Operation{
		Method: "POST", Path: "/api/v1/session/{id}/submit", Summary: "Submit",
		Params:      []Param{{Name: "id", In: "path"}},
		RequestBody: map[string]any{"type": "object"},
		Responses:   map[string]string{"200": "Session view"},
	})
	r.Register(Operation{Method: "GET", Path: "/api/v1/session", Summary: "Start",
		Params: []Param{{Name: "app_id", In: "query", Required: true}}})

	doc := r.Build("authwidget", "1")
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	require.Contains(t, paths, "/api/v1/session")
	post := paths["/api/v1/session/{id}/submit"].(map[string]any)["post"].(map[string]any)
	params := post["parameters"].([]map[string]any)
	assert.Equal(t, true, params[0]["required"])
	assert.Contains(t, post, "requestBody")
}

func TestServeHandler(t *testing.T) {
	r := NewRegistry()
	r.Register(Operation{Method: "get", Path: "/healthz", Responses: map[string]string{"200": "ok"}})
	rec := httptest.NewRecorder()
	r.ServeHandler("authwidget", "1")(rec, httptest.NewRequest("GET", "/openapi.json", nil))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	get := doc["paths"].(map[string]any)["/healthz"].(map[string]any)["get"].(map[string]any)
	assert.Equal(t, map[string]any{"200": map[string]any{"description": "ok"}}, get["responses"])
}
