package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/CTAG07/mimic/pkg/markov"
	"github.com/CTAG07/mimic/pkg/templating"
)

const maxTemplateBytes = 1 << 20

// TemplateInput is the data every rendered template receives.
type TemplateInput struct {
	Params map[string]string
}

// newTemplateInput flattens query parameters or --set flags into a
// TemplateInput, keeping the first value of each key.
func newTemplateInput(values url.Values) TemplateInput {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return TemplateInput{Params: params}
}

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/test", t.handleTest)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleRender)
}

// handleRefresh reloads templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the names of the loaded templates.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	names := t.tm.GetTemplateNames()
	if names == nil {
		names = []string{}
	}
	respondWithJSON(w, http.StatusOK, names)
}

// handleTest renders the request body as a template string. Query parameters
// become .Params.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBytes))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, string(body), newTemplateInput(r.URL.Query())); err != nil {
		t.respondWithRenderError(w, http.StatusBadRequest, err)
		return
	}
	writeText(w, buf.Bytes())
}

// handleRender renders a named template from the template directory.
func (t *TemplateAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" || strings.Contains(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var buf bytes.Buffer
	if err := t.tm.Execute(&buf, name, newTemplateInput(r.URL.Query())); err != nil {
		t.respondWithRenderError(w, http.StatusInternalServerError, err)
		return
	}
	writeText(w, buf.Bytes())
}

// respondWithRenderError maps lookup failures to 404 and everything else to
// fallback.
func (t *TemplateAPI) respondWithRenderError(w http.ResponseWriter, fallback int, err error) {
	switch {
	case errors.Is(err, templating.ErrTemplateNotFound):
		respondWithError(w, http.StatusNotFound, "Template not found")
	case errors.Is(err, markov.ErrModelNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		if fallback >= http.StatusInternalServerError {
			t.logger.Error("Template render failed", "error", err)
		}
		respondWithError(w, fallback, fmt.Sprintf("Template execution failed: %v", err))
	}
}

func writeText(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(body)
}
