package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/policy"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}

	var st struct {
		Mode        string `json:"mode"`
		GeneratedAt string `json:"generated_at"`
	}
	if err := store.ReadJSON(filepath.Join(s.stateDir, store.GlobalStateFile), &st); err == nil {
		resp["mode"] = st.Mode
		resp["generated_at"] = st.GeneratedAt
	} else {
		resp["status"] = "no_state"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	s.serveDocument(w, store.SymbolPolicyFile)
}

func (s *Server) handleSymbolPolicy(w http.ResponseWriter, r *http.Request) {
	sym := chi.URLParam(r, "symbol")

	var doc policy.Document
	if err := store.ReadJSON(filepath.Join(s.stateDir, store.SymbolPolicyFile), &doc); err != nil {
		s.documentError(w, err)
		return
	}
	p, ok := doc.Lookup(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+sym)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	file, ok := store.StateDocuments[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown state document "+name)
		return
	}
	s.serveDocument(w, file)
}

// serveDocument streams a persisted document as-is.
func (s *Server) serveDocument(w http.ResponseWriter, file string) {
	b, err := os.ReadFile(filepath.Join(s.stateDir, file))
	if err != nil {
		s.documentError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) documentError(w http.ResponseWriter, err error) {
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "document not written yet")
		return
	}
	s.log.Error().Err(err).Msg("read state document")
	writeError(w, http.StatusInternalServerError, "unreadable document")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
