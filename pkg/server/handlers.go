// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/discovery"
	"github.com/kadirpekel/scout/pkg/pipeline"
	"github.com/kadirpekel/scout/pkg/report"
)

const maxListLimit = 500

// DiscoverResponse is returned by POST /v1/discoveries.
type DiscoverResponse struct {
	Report     *report.Report `json:"report"`
	ReportPath string         `json:"report_path,omitempty"`
	Output     string         `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.URL != "" {
		if err := config.ValidateURL(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !s.slots.TryAcquire(1) {
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "all browser slots are busy")
		return
	}
	defer s.slots.Release(1)

	res, err := s.svc.Discover(r.Context(), req)
	switch {
	case errors.Is(err, config.ErrMissingURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Discovery failed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, DiscoverResponse{
		Report:     res.Report,
		ReportPath: res.ReportPath,
		Output:     res.Output,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	opts := report.ListOptions{Host: r.URL.Query().Get("host")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = min(n, maxListLimit)
	}

	reports, err := s.svc.Reports().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []*report.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Reports().Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, report.ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

// handleSchema describes the observation document agents produce.
func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&discovery.Observation{})
	schema.Title = "Scout Observation"
	schema.Description = "What the discovery agent reports about a web page"

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, schema)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
