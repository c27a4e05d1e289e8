package handler

import (
	"net/http"

	"github.com/toolgate/toolgate/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document for the admin API.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeSpec returns the OpenAPI document. Servers point at the host the
// request came in on.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	doc := openapi.GenerateAdminSpec(h.version, scheme+"://"+r.Host)
	writeJSON(w, http.StatusOK, doc)
}
