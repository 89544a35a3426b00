package web

import (
	"net/http"

	"github.com/JonMunkholm/factflow/internal/model"
)

// saveMappingRequest is the body of PUT /api/analyses/{id}/mappings/{col}.
type saveMappingRequest struct {
	DimensionType model.DimensionType `json:"dimensionType"`
	MappingRules  map[string]string   `json:"mappingRules,omitempty"`
}

// handleSuggestMappings returns the auto-detected mappings of an analysis.
func (s *Server) handleSuggestMappings(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	suggestions, err := s.service.SuggestMappings(r.Context(), analysisID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []model.DimensionMapping{}
	}
	writeJSON(w, suggestions)
}

// handleListMappings returns the saved mappings of an analysis.
func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mappings, err := s.service.ListMappings(r.Context(), analysisID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if mappings == nil {
		mappings = []model.DimensionMapping{}
	}
	writeJSON(w, mappings)
}

// handleSaveMapping records the operator's mapping of one column.
func (s *Server) handleSaveMapping(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	col, err := columnParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req saveMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	saved, err := s.service.SaveMapping(r.Context(), analysisID, col, req.DimensionType, req.MappingRules)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, saved)
}

// handleDeleteMapping removes the saved mapping of one column.
func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	col, err := columnParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.DeleteMapping(r.Context(), analysisID, col); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateMappings checks the mapping set processing would use.
func (s *Server) handleValidateMappings(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.ValidateMappings(r.Context(), analysisID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, result)
}
