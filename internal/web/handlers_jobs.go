package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/model"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleStartProcessing submits a processing job for an upload.
func (s *Server) handleStartProcessing(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuidParam(r, "uploadID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := s.service.StartProcessing(r.Context(), uploadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID.String())
	writeJSONStatus(w, http.StatusAccepted, job)
}

// handleListJobs returns the jobs of an upload, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuidParam(r, "uploadID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.service.ListJobs(r.Context(), uploadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.ProcessingJob{}
	}
	writeJSON(w, list)
}

// handleJobStatus returns the state and progress of a job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := s.service.JobStatus(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, job)
}

// handleJobErrors returns the error ledger of a job.
func (s *Server) handleJobErrors(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	errs, err := s.service.JobErrors(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if errs == nil {
		errs = []model.ProcessingError{}
	}
	writeJSON(w, errs)
}

// handleResolveError flags one ledger entry as resolved.
func (s *Server) handleResolveError(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	errorID, err := uuidParam(r, "errorID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.ResolveError(r.Context(), jobID, errorID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobFacts returns the fact records a job wrote.
func (s *Server) handleJobFacts(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	facts, err := s.service.ListFacts(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if facts == nil {
		facts = []model.FactRecord{}
	}
	writeJSON(w, facts)
}

// handleJobEvents streams job progress as Server-Sent Events. Each event
// carries a sequence id; the stream ends with a "complete" event once the
// job reaches COMPLETED or FAILED.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	events, cancel, err := s.service.SubscribeProgress(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Warn("sse flush unsupported", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	seq := 0
	for {
		select {
		case e, ok := <-events:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				logging.FromContext(r.Context()).Warn("sse encode", "error", err)
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", seq, data)
			rc.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			rc.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
