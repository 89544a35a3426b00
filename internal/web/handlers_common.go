package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/core"
	"github.com/JonMunkholm/factflow/internal/jobs"
)

// uuidParam parses a UUID path parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a valid id", core.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// columnParam parses the columnIndex path parameter.
func columnParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "columnIndex")
	col, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: column out of range: %q", core.ErrInvalidInput, raw)
	}
	return col, nil
}

// decodeJSON reads a JSON request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", core.ErrInvalidInput, err)
	}
	return nil
}

// healthResponse reports liveness and processing slot usage.
type healthResponse struct {
	Status  string             `json:"status"`
	Limiter jobs.LimiterStatus `json:"limiter"`
}

// handleHealth reports that the server is up along with limiter usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:  "ok",
		Limiter: s.service.LimiterStatus(),
	})
}
