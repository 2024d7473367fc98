package api

import (
	"net/http"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var openAPIOnce sync.Once
var openAPIBytes []byte
var openAPIErr error

// openAPILoad reads and sanity-checks the OpenAPI document once.
func openAPILoad() ([]byte, error) {
	openAPIOnce.Do(func() {
		b, err := os.ReadFile("openapi/openapi.yaml")
		if err != nil {
			openAPIErr = err
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			openAPIErr = err
			return
		}
		openAPIBytes = b
	})
	return openAPIBytes, openAPIErr
}

// OpenAPIHandler serves the OpenAPI spec
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	b, err := openAPILoad()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "OpenAPI not available", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Rider Dispatch API</title>
	<meta charset="utf-8"/>
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
	</head><body>
	<redoc spec-url="/openapi.yaml"></redoc>
	</body></html>`))
}
