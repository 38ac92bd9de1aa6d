package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"odbcref/internal/core"
	"odbcref/internal/script"
	"odbcref/internal/service"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

type Handler struct {
	runner      *service.Runner
	profileRepo core.ProfileRepository
	scriptRepo  core.ScriptRepository
	runRepo     core.RunRepository
	authSvc     *service.AuthService
	supports    func(driver string) bool
	allowRawDSN bool
}

// NewHandler builds the API handlers. Unless allowRawDSN is set, runs must
// name a stored profile; a raw driver and DSN would let any key holder open
// arbitrary files and hosts.
func NewHandler(runner *service.Runner, profileRepo core.ProfileRepository, scriptRepo core.ScriptRepository, runRepo core.RunRepository, authSvc *service.AuthService, supports func(driver string) bool, allowRawDSN bool) *Handler {
	return &Handler{
		runner:      runner,
		profileRepo: profileRepo,
		scriptRepo:  scriptRepo,
		runRepo:     runRepo,
		authSvc:     authSvc,
		supports:    supports,
		allowRawDSN: allowRawDSN,
	}
}

type runRequest struct {
	Profile string         `json:"profile"`
	Driver  string         `json:"driver"`
	DSN     string         `json:"dsn"`
	Script  string         `json:"script"`
	Saved   string         `json:"saved"`
	Enable  []int          `json:"enable"`
	Disable []int          `json:"disable"`
	Params  map[string]any `json:"params"`
	Verify  bool           `json:"verify"`
}

// RunScript executes a script and answers with the recorded run. Statement
// failures are part of the run, so they still answer 200.
func (h *Handler) RunScript(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	text := req.Script
	if req.Saved != "" {
		saved, err := h.scriptRepo.GetBySlug(core.Slugify(req.Saved))
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		text = saved.Body
	}

	s := script.Default()
	if strings.TrimSpace(text) != "" {
		var err error
		if s, err = script.Parse(strings.NewReader(text)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, n := range req.Enable {
		if err := script.Toggle(s, n, true); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, n := range req.Disable {
		if err := script.Toggle(s, n, false); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Profile == "" && !h.allowRawDSN {
		writeError(w, http.StatusForbidden, "raw data sources are disabled, use a stored profile")
		return
	}
	if req.Profile == "" && !h.supports(req.Driver) {
		writeError(w, http.StatusBadRequest, "unsupported driver: "+req.Driver)
		return
	}

	run, err := h.runner.Run(r.Context(), service.RunRequest{
		Profile: req.Profile,
		Driver:  req.Driver,
		DSN:     req.DSN,
		Script:  s,
		Params:  req.Params,
		Verify:  req.Verify,
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, core.ErrInactive):
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": err == nil,
		"data":    run,
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runRepo.GetRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []core.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": runs})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": run})
}

func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileRepo.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profiles == nil {
		profiles = []core.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": profiles})
}

func (h *Handler) ListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.scriptRepo.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scripts == nil {
		scripts = []core.SavedScript{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": scripts})
}

func (h *Handler) DefaultScript(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := script.Format(&buf, script.Default()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

// Routes builds the API router. Every route requires an API key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.AuthMiddleware)

	r.Post("/run", h.RunScript)
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{runID}", h.GetRun)
	r.Get("/profiles", h.ListProfiles)
	r.Get("/scripts", h.ListScripts)
	r.Get("/script/default", h.DefaultScript)

	return r
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKeyStr := r.Header.Get("X-API-Key")
		if apiKeyStr == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-API-Key header")
			return
		}

		apiKey, err := h.authSvc.VerifyApiKey(apiKeyStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid X-API-Key")
			return
		}

		ctx := context.WithValue(r.Context(), core.ContextKeyApiKeyID, apiKey.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
