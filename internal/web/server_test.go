package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/core"
	"github.com/JonMunkholm/factflow/internal/jobs"
	"github.com/JonMunkholm/factflow/internal/mapping"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/store"
	"github.com/JonMunkholm/factflow/internal/transform"
)

const sampleCSV = "Indicator,2020,2021\nGDP,100,110\n"

func newTestServer(t *testing.T, opts Options) (*Server, *core.Service) {
	t.Helper()
	st := store.NewMemory()
	pipeline := transform.NewPipeline(st, transform.Options{AggregationThreshold: 1})
	controller := jobs.NewController(st, pipeline, jobs.NewLimiter(2, time.Second))
	svc := core.NewService(st, mapping.NewEngine(nil, 0), controller, core.Options{
		UploadDir:   t.TempDir(),
		MaxFileSize: 1 << 10,
	})
	return NewServer(svc, opts), svc
}

func do(t *testing.T, s *Server, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, name, content string) ([]byte, http.Header) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return buf.Bytes(), http.Header{"Content-Type": {mw.FormDataContentType()}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func upload(t *testing.T, s *Server, content string) model.UploadJob {
	t.Helper()
	body, header := multipartBody(t, "file", "data.csv", content)
	rec := do(t, s, http.MethodPost, "/api/uploads", body, header)
	expectStatus(t, rec, http.StatusCreated)
	return decode[model.UploadJob](t, rec)
}

func TestServer_ProcessingFlow(t *testing.T) {
	s, svc := newTestServer(t, Options{})

	u := upload(t, s, sampleCSV)
	if u.FileName != "data.csv" || u.Size != int64(len(sampleCSV)) {
		t.Errorf("upload = %+v", u)
	}

	rec := do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/analysis", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	a := decode[model.Analysis](t, rec)
	if a.ColumnCount != 3 || !a.HasHeader {
		t.Errorf("analysis = %+v", a)
	}

	rec = do(t, s, http.MethodGet, "/api/analyses/"+a.ID.String()+"/suggestions", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.DimensionMapping](t, rec); len(got) != 3 {
		t.Errorf("suggestions = %+v", got)
	}

	rec = do(t, s, http.MethodGet, "/api/analyses/"+a.ID.String()+"/validation", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if v := decode[model.ValidationResult](t, rec); !v.IsValid {
		t.Errorf("validation = %+v", v)
	}

	rec = do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/process", nil, nil)
	expectStatus(t, rec, http.StatusAccepted)
	job := decode[model.ProcessingJob](t, rec)
	if loc := rec.Header().Get("Location"); loc != "/api/jobs/"+job.ID.String() {
		t.Errorf("Location = %q", loc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitForJobs(ctx); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/"+job.ID.String(), nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.ProcessingJob](t, rec); got.Status != model.JobCompleted || got.ProgressPercentage != 100 {
		t.Errorf("job = %+v", got)
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/"+job.ID.String()+"/errors", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("errors body = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/"+job.ID.String()+"/facts", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]json.RawMessage](t, rec); len(got) != 2 {
		t.Errorf("facts = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/uploads/"+u.ID.String()+"/jobs", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.ProcessingJob](t, rec); len(got) != 1 || got[0].ID != job.ID {
		t.Errorf("jobs = %+v", got)
	}
}

func TestServer_JobEventsReplayFinishedJob(t *testing.T) {
	s, svc := newTestServer(t, Options{})
	u := upload(t, s, sampleCSV)
	do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/analysis", nil, nil)

	rec := do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/process", nil, nil)
	expectStatus(t, rec, http.StatusAccepted)
	job := decode[model.ProcessingJob](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitForJobs(ctx); err != nil {
		t.Fatalf("WaitForJobs() error = %v", err)
	}

	rec = do(t, s, http.MethodGet, "/api/jobs/"+job.ID.String()+"/events", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 1\nevent: progress\n") || !strings.Contains(body, `"status":"COMPLETED"`) {
		t.Errorf("stream missing progress event:\n%s", body)
	}
	if !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream not terminated:\n%s", body)
	}
}

func TestServer_SaveAndDeleteMapping(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	u := upload(t, s, sampleCSV)
	rec := do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/analysis", nil, nil)
	a := decode[model.Analysis](t, rec)
	base := "/api/analyses/" + a.ID.String() + "/mappings/"

	rec = do(t, s, http.MethodPut, base+"0", []byte(`{"dimensionType":"unit"}`), nil)
	expectStatus(t, rec, http.StatusOK)
	saved := decode[model.DimensionMapping](t, rec)
	if saved.DimensionType != model.DimUnit || saved.IsAutoDetected || saved.ConfidenceScore != 1 {
		t.Errorf("saved = %+v", saved)
	}

	// Overriding the only indicator column leaves no INDICATOR_NAME.
	rec = do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/process", nil, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "MAP001" || len(resp.Problems) != 1 {
		t.Errorf("error response = %+v", resp)
	}

	rec = do(t, s, http.MethodGet, "/api/analyses/"+a.ID.String()+"/mappings", nil, nil)
	if got := decode[[]model.DimensionMapping](t, rec); len(got) != 1 {
		t.Errorf("mappings = %+v", got)
	}

	rec = do(t, s, http.MethodDelete, base+"0", nil, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, s, http.MethodDelete, base+"0", nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestServer_ErrorResponses(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	u := upload(t, s, sampleCSV)
	rec := do(t, s, http.MethodPost, "/api/uploads/"+u.ID.String()+"/analysis", nil, nil)
	a := decode[model.Analysis](t, rec)
	unanalyzed := upload(t, s, sampleCSV)

	tooBig, tooBigHeader := multipartBody(t, "file", "big.csv", strings.Repeat("a,1\n", 512))
	wrongField, wrongFieldHeader := multipartBody(t, "attachment", "data.csv", sampleCSV)

	tests := []struct {
		name     string
		method   string
		path     string
		body     []byte
		header   http.Header
		wantCode int
		wantErr  string
	}{
		{"bad upload id", http.MethodGet, "/api/uploads/nope", nil, nil, http.StatusBadRequest, "ERR000"},
		{"unknown upload", http.MethodGet, "/api/uploads/" + uuid.NewString(), nil, nil, http.StatusNotFound, "JOB003"},
		{"unknown job", http.MethodGet, "/api/jobs/" + uuid.NewString(), nil, nil, http.StatusNotFound, "JOB003"},
		{"unknown analysis", http.MethodGet, "/api/analyses/" + uuid.NewString(), nil, nil, http.StatusNotFound, "MAP002"},
		{"process without analysis", http.MethodPost, "/api/uploads/" + unanalyzed.ID.String() + "/process", nil, nil, http.StatusNotFound, "MAP002"},
		{"file too large", http.MethodPost, "/api/uploads", tooBig, tooBigHeader, http.StatusRequestEntityTooLarge, "FILE001"},
		{"missing file field", http.MethodPost, "/api/uploads", wrongField, wrongFieldHeader, http.StatusBadRequest, "FILE004"},
		{"not multipart", http.MethodPost, "/api/uploads", []byte("x"), nil, http.StatusBadRequest, "FILE004"},
		{"unknown dimension type", http.MethodPut, "/api/analyses/" + a.ID.String() + "/mappings/0", []byte(`{"dimensionType":"COLOR"}`), nil, http.StatusBadRequest, "VAL003"},
		{"column out of range", http.MethodPut, "/api/analyses/" + a.ID.String() + "/mappings/9", []byte(`{"dimensionType":"TIME"}`), nil, http.StatusBadRequest, "VAL004"},
		{"non-numeric column", http.MethodPut, "/api/analyses/" + a.ID.String() + "/mappings/x", []byte(`{"dimensionType":"TIME"}`), nil, http.StatusBadRequest, "VAL004"},
		{"unknown body field", http.MethodPut, "/api/analyses/" + a.ID.String() + "/mappings/0", []byte(`{"type":"TIME"}`), nil, http.StatusBadRequest, "ERR000"},
		{"resolve unknown error", http.MethodPost, "/api/jobs/" + uuid.NewString() + "/errors/" + uuid.NewString() + "/resolve", nil, nil, http.StatusNotFound, "JOB003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body, tt.header)
			expectStatus(t, rec, tt.wantCode)
			if got := decode[ErrorResponse](t, rec); got.Code != tt.wantErr {
				t.Errorf("code = %q, want %q (%+v)", got.Code, tt.wantErr, got)
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rec := do(t, s, http.MethodGet, "/api/health", nil, nil)
	expectStatus(t, rec, http.StatusOK)

	got := decode[healthResponse](t, rec)
	if got.Status != "ok" || got.Limiter.MaxConcurrent != 2 || got.Limiter.Available != 2 {
		t.Errorf("health = %+v", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestServer_APIKeyAuth(t *testing.T) {
	s, _ := newTestServer(t, Options{APIKeys: []string{"secret"}})
	body, header := multipartBody(t, "file", "data.csv", sampleCSV)

	rec := do(t, s, http.MethodPost, "/api/uploads", body, header)
	expectStatus(t, rec, http.StatusUnauthorized)

	header.Set("X-API-Key", "wrong")
	rec = do(t, s, http.MethodPost, "/api/uploads", body, header)
	expectStatus(t, rec, http.StatusForbidden)

	header.Set("X-API-Key", "secret")
	rec = do(t, s, http.MethodPost, "/api/uploads", body, header)
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, s, http.MethodGet, "/api/health", nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestServer_RateLimit(t *testing.T) {
	s, _ := newTestServer(t, Options{RateLimitEnabled: true, RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		expectStatus(t, do(t, s, http.MethodGet, "/api/health", nil, nil), http.StatusOK)
	}
	rec := do(t, s, http.MethodGet, "/api/health", nil, nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "RATE001" {
		t.Errorf("code = %q", got.Code)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   time.Minute,
		now:      func() time.Time { return now },
	}

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Error("third request in window should be limited")
	}
	if !rl.allow("b") {
		t.Error("other visitors have their own bucket")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.allow("a") {
		t.Error("request after window should pass")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("job x: %w", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", core.ErrInvalidInput), http.StatusBadRequest},
		{core.ErrNoFile, http.StatusBadRequest},
		{core.ErrEmptyFile, http.StatusBadRequest},
		{fmt.Errorf("%w: limit", core.ErrFileTooLarge), http.StatusRequestEntityTooLarge},
		{&model.MappingError{Problems: []string{"x"}}, http.StatusUnprocessableEntity},
		{&model.StructuralError{Path: "f", Err: model.ErrMalformedFile}, http.StatusUnprocessableEntity},
		{model.ErrJobInProgress, http.StatusConflict},
		{jobs.ErrTooManyJobs, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{model.Infra("insert facts", errors.New("connection refused")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
