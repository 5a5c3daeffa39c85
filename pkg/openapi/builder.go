package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Param is a query or path parameter.
type Param struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required"`
	Doc      string `json:"description,omitempty"`
}

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Params      []Param
	RequestBody any
	// Responses maps a status code to its description.
	Responses map[string]string
}

// Registry collects the operations a router exposes.
type Registry struct {
	mu  sync.Mutex
	ops []Operation
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(op Operation) {
	op.Method = strings.ToLower(op.Method)
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// Build produces a minimal OpenAPI 3.1 document of the registered operations.
func (r *Registry) Build(serviceName, version string) map[string]any {
	r.mu.Lock()
	ops := append([]Operation(nil), r.ops...)
	r.mu.Unlock()
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })

	paths := map[string]any{}
	for _, op := range ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		responses := map[string]any{}
		for code, desc := range op.Responses {
			responses[code] = map[string]any{"description": desc}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"responses": responses,
		}
		if len(op.Tags) > 0 {
			m["tags"] = op.Tags
		}
		if len(op.Params) > 0 {
			params := make([]map[string]any, 0, len(op.Params))
			for _, p := range op.Params {
				params = append(params, map[string]any{
					"name": p.Name, "in": p.In, "required": p.Required || p.In == "path",
					"description": p.Doc, "schema": map[string]string{"type": "string"},
				})
			}
			m["parameters"] = params
		}
		if op.RequestBody != nil {
			m["requestBody"] = map[string]any{
				"required": true,
				"content":  map[string]any{"application/json": map[string]any{"schema": op.RequestBody}},
			}
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
