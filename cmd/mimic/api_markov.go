package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/CTAG07/mimic/pkg/markov"
)

const (
	maxCorpusBytes = 32 << 20
	maxImportBytes = 64 << 20
	maxSentences   = 100
	streamTimeout  = 10 * time.Second
)

// MarkovAPI holds the dependencies for the Markov model API handlers.
type MarkovAPI struct {
	store    *markov.Store
	builder  *markov.Builder
	cache    *modelCache
	defaults MarkovConfig
	logger   *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(store *markov.Store, builder *markov.Builder, cache *modelCache, defaults MarkovConfig, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:    store,
		builder:  builder,
		cache:    cache,
		defaults: defaults,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all model endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListModels)
	mux.HandleFunc("/api/models/", m.handleModelByName)
	mux.HandleFunc("/api/import", m.handleImport)
	mux.HandleFunc("/api/vocabulary/prune", m.handleVocabPrune)
}

// TrainResponse is returned after a model has been built and stored.
type TrainResponse struct {
	Model markov.ModelInfo  `json:"model"`
	Stats markov.ModelStats `json:"stats"`
}

// GenerateResponse holds the sentences generated for a request.
type GenerateResponse struct {
	Model     string   `json:"model"`
	Sentences []string `json:"sentences"`
}

// handleListModels lists the stored models sorted by name.
func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := m.store.GetModelInfos(r.Context())
	if err != nil {
		m.respondWithModelError(w, r, "Listing models", err)
		return
	}
	respondWithJSON(w, http.StatusOK, sortedModels(models))
}

// handleModelByName routes actions for a specific model, e.g., train, generate, export, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}
	if len(parts) > 2 {
		respondWithError(w, http.StatusNotFound, "Action not found")
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if err := m.store.RemoveModel(r.Context(), modelName); err != nil {
			m.respondWithModelError(w, r, "Removal", err)
			return
		}
		m.cache.invalidate(modelName)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	action := parts[1]
	method := http.MethodGet
	if action == "train" {
		method = http.MethodPost
	}
	if r.Method != method {
		w.Header().Set("Allow", method)
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch action {
	case "train":
		m.handleTrain(w, r, modelName)
	case "generate":
		m.handleGenerate(w, r, modelName)
	case "stream":
		m.handleStream(w, r, modelName)
	case "stats":
		m.handleStats(w, r, modelName)
	case "export":
		m.handleExport(w, r, modelName)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleTrain builds a model from the request body and stores it under name.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request, name string) {
	model, err := m.builder.Build(r.Context(), http.MaxBytesReader(w, r.Body, maxCorpusBytes))
	if err != nil {
		m.respondWithModelError(w, r, "Training", err)
		return
	}
	info, err := m.store.SaveModel(r.Context(), name, model)
	if err != nil {
		m.respondWithModelError(w, r, "Training", err)
		return
	}
	m.cache.invalidate(name)
	respondWithJSON(w, http.StatusCreated, TrainResponse{Model: info, Stats: model.Stats()})
}

// handleGenerate returns count sentences, skipping empty ones.
func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request, name string) {
	g, count, ok := m.generatorFor(w, r, name)
	if !ok {
		return
	}

	sentences := make([]string, 0, count)
	for i := 0; i < count; i++ {
		sentence, err := g.Generate(r.Context())
		if err != nil {
			m.respondWithModelError(w, r, "Generation", err)
			return
		}
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	respondWithJSON(w, http.StatusOK, GenerateResponse{Model: name, Sentences: sentences})
}

// handleStream upgrades to a websocket and sends one text message per
// generated sentence, then closes normally.
func (m *MarkovAPI) handleStream(w http.ResponseWriter, r *http.Request, name string) {
	g, count, ok := m.generatorFor(w, r, name)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		m.logger.WarnContext(r.Context(), "WebSocket upgrade failed",
			slog.String("request_id", requestID(r.Context())),
			slog.Any("error", err),
		)
		return
	}

	// The context ends when the client goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	sent := 0
	for sentence := range g.GenerateStream(ctx, count) {
		writeCtx, writeCancel := context.WithTimeout(ctx, streamTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, []byte(sentence))
		writeCancel()
		if err != nil {
			m.logger.DebugContext(ctx, "WebSocket write failed",
				slog.String("request_id", requestID(r.Context())),
				slog.Any("error", err),
			)
			_ = conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
		sent++
	}

	m.logger.DebugContext(r.Context(), "Stream complete",
		slog.String("model_name", name),
		slog.Int("sentences_sent", sent),
	)
	_ = conn.Close(websocket.StatusNormalClosure, "stream complete")
}

// handleStats returns the statistics of a stored model.
func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request, name string) {
	info, err := m.store.GetModelInfo(r.Context(), name)
	if err != nil {
		m.respondWithModelError(w, r, "Stats", err)
		return
	}
	stats, err := m.store.GetModelStats(r.Context(), info)
	if err != nil {
		m.respondWithModelError(w, r, "Stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleExport writes the model as JSON, or YAML with ?format=yaml.
func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request, name string) {
	format, err := formatFor(r.URL.Query().Get("format"), "")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, err := m.cache.LoadModel(r.Context(), name)
	if err != nil {
		m.respondWithModelError(w, r, "Export", err)
		return
	}

	contentType := "application/json"
	if format == markov.FormatYAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.%s\"", name, format))
	if err = model.Export(name).Encode(w, format); err != nil {
		m.logger.ErrorContext(r.Context(), "Failed to export model",
			slog.String("request_id", requestID(r.Context())),
			slog.String("model_name", name),
			slog.Any("error", err),
		)
	}
}

// handleImport stores a model uploaded in exported form. The model name comes
// from ?name= or, failing that, from the export itself.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	query := r.URL.Query()
	format, err := formatFor(query.Get("format"), "")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	exported, err := markov.DecodeExported(http.MaxBytesReader(w, r.Body, maxImportBytes), format)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if name := query.Get("name"); name != "" {
		exported.Name = name
	}
	if exported.Name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	model, err := markov.Import(exported)
	if err != nil {
		m.respondWithModelError(w, r, "Import", err)
		return
	}
	info, err := m.store.SaveModel(r.Context(), exported.Name, model)
	if err != nil {
		m.respondWithModelError(w, r, "Import", err)
		return
	}
	m.cache.invalidate(exported.Name)
	respondWithJSON(w, http.StatusCreated, info)
}

// handleVocabPrune performs a global vocabulary prune.
func (m *MarkovAPI) handleVocabPrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	n, err := m.store.PruneVocabulary(r.Context())
	if err != nil {
		m.respondWithModelError(w, r, "Vocabulary prune", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"pruned": n})
}

// generatorFor loads the named model and builds a Generator from the
// configured defaults and the count, max_words, temperature, top_k and seed
// query parameters. On failure it writes the response and returns false.
func (m *MarkovAPI) generatorFor(w http.ResponseWriter, r *http.Request, name string) (*markov.Generator, int, bool) {
	settings := m.defaults
	query := r.URL.Query()

	var seed *uint64
	var err error
	parseInt := func(key string, dst *int) {
		if v := query.Get(key); v != "" && err == nil {
			*dst, err = strconv.Atoi(v)
			if err != nil {
				err = fmt.Errorf("invalid %s: %q", key, v)
			}
		}
	}
	parseInt("count", &settings.Sentences)
	parseInt("max_words", &settings.MaxWords)
	parseInt("top_k", &settings.TopK)
	if v := query.Get("temperature"); v != "" && err == nil {
		settings.Temperature, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(settings.Temperature) || math.IsInf(settings.Temperature, 0) {
			err = fmt.Errorf("invalid temperature: %q", v)
		}
	}
	if v := query.Get("seed"); v != "" && err == nil {
		s, parseErr := strconv.ParseUint(v, 10, 64)
		if parseErr != nil {
			err = fmt.Errorf("invalid seed: %q", v)
		}
		seed = &s
	}
	if err == nil && (settings.Sentences < 1 || settings.Sentences > maxSentences) {
		err = fmt.Errorf("count must be between 1 and %d", maxSentences)
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return nil, 0, false
	}

	model, err := m.cache.LoadModel(r.Context(), name)
	if err != nil {
		m.respondWithModelError(w, r, "Loading model", err)
		return nil, 0, false
	}

	opts := settings.generateOptions()
	if seed != nil {
		opts = append(opts, markov.WithSeed(*seed))
	}
	g, err := markov.NewGenerator(model, opts...)
	if err != nil {
		m.respondWithModelError(w, r, "Loading model", err)
		return nil, 0, false
	}
	g.SetLogger(m.logger)
	return g, settings.Sentences, true
}

// respondWithModelError maps package errors to status codes and logs the
// unexpected ones.
func (m *MarkovAPI) respondWithModelError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, markov.ErrModelNotFound):
		respondWithError(w, http.StatusNotFound, "Model not found")
	case errors.As(err, &tooLarge):
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, markov.ErrDegenerateCorpus):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, markov.ErrInvalidKey),
		errors.Is(err, markov.ErrInvalidProbability),
		errors.Is(err, markov.ErrInvalidTerminator):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		m.logger.ErrorContext(r.Context(), action+" failed",
			slog.String("request_id", requestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed: %v", action, err))
	}
}
