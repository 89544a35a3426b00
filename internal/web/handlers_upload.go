package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/factflow/internal/core"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// handleUpload stores a CSV file sent as the "file" field of a multipart form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope; the service enforces the exact
	// file size limit.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.opts.MaxUploadSize))
			return
		}
		s.fail(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	upload, err := s.service.RegisterUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, upload)
}

// handleGetUpload returns a registered upload.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuidParam(r, "uploadID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	upload, err := s.service.GetUpload(r.Context(), uploadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, upload)
}

// handleAnalyze runs (or returns the cached) structure analysis of an upload.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuidParam(r, "uploadID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	analysis, err := s.service.AnalyzeStructure(r.Context(), uploadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, analysis)
}

// handleGetAnalysis returns a stored analysis.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysisID, err := uuidParam(r, "analysisID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	analysis, err := s.service.GetAnalysis(r.Context(), analysisID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, analysis)
}
