package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talentsift/research-sdk-go/types"
)

func validSubmitRequest() SubmitRequest {
	return SubmitRequest{
		LinkedInURL:    "https://www.linkedin.com/in/ada-lovelace",
		CV:             Document{Name: "cv.pdf", Content: []byte("%PDF-1.4 fake resume body")},
		JobDescription: strings.Repeat("Senior platform engineer with Go and distributed systems experience. ", 3),
	}
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestSubmitSendsMultipartForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/research" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("linkedin_url"); !strings.Contains(got, "linkedin.com/in/ada-lovelace") {
			t.Errorf("unexpected linkedin_url %q", got)
		}
		if got := r.FormValue("job_description"); len(got) < 100 {
			t.Errorf("job_description too short: %d chars", len(got))
		}
		file, header, err := r.FormFile("cv_file")
		if err != nil {
			t.Fatalf("cv_file part missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "cv.pdf" {
			t.Errorf("unexpected cv filename %q", header.Filename)
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"research_id": "run-123",
			"status":      "initiated",
			"message":     "research pipeline started",
		})
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := c.Submit(context.Background(), validSubmitRequest())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if result.RunID != "run-123" {
		t.Errorf("expected run-123, got %q", result.RunID)
	}
	if result.Status != "initiated" {
		t.Errorf("expected initiated status, got %q", result.Status)
	}
}

func TestSubmitUsesJobDescriptionFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("job_description"); got != "" {
			t.Errorf("job_description field should be absent, got %q", got)
		}
		file, header, err := r.FormFile("job_description_file")
		if err != nil {
			t.Fatalf("job_description_file part missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "role.txt" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"research_id": "run-9", "status": "initiated"})
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := validSubmitRequest()
	req.JobDescription = ""
	req.JobDescriptionFile = &Document{Name: "role.txt", Content: []byte("full role description")}
	if _, err := c.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
}

func TestSubmitRetriesServerFaults(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"research_id": "run-42", "status": "initiated"})
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetryPolicy(testPolicy()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := c.Submit(context.Background(), validSubmitRequest())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if result.RunID != "run-42" {
		t.Errorf("expected run-42, got %q", result.RunID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestSubmitStopsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "still broken", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetryPolicy(testPolicy()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = c.Submit(context.Background(), validSubmitRequest())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	var runErr *types.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected wrapped RunError, got %T", err)
	}
	if runErr.Kind != types.ErrorServer {
		t.Errorf("expected server error kind, got %q", runErr.Kind)
	}
}

func TestSubmitDoesNotRetryValidationRejections(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "linkedin profile is private", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetryPolicy(testPolicy()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = c.Submit(context.Background(), validSubmitRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("validation rejection should not retry, got %d attempts", got)
	}
	var runErr *types.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected wrapped RunError, got %T", err)
	}
	if runErr.Kind != types.ErrorValidation {
		t.Errorf("expected validation kind, got %q", runErr.Kind)
	}
}

func TestSubmitLocalValidationSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := validSubmitRequest()
	req.LinkedInURL = "https://example.com/profile"
	if _, err := c.Submit(context.Background(), req); err == nil {
		t.Fatal("expected validation error")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("invalid request must not reach the server, got %d calls", got)
	}
}

func TestSubmitReportsUploadProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"research_id": "run-7", "status": "initiated"})
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var lastSent, total int64
	req := validSubmitRequest()
	req.OnUploadProgress = func(sent, totalBytes int64) {
		lastSent = sent
		total = totalBytes
	}
	if _, err := c.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if total == 0 {
		t.Fatal("progress callback never fired")
	}
	if lastSent != total {
		t.Errorf("expected final sent == total, got %d/%d", lastSent, total)
	}
}

func TestStatusDecodesSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/research/run-55/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"research_id": "run-55",
			"status": "processing",
			"current_stage": "person-research",
			"overall_progress": 47.5,
			"estimated_time_remaining": 118,
			"stages": [
				{"id": "initialization", "status": "completed", "progress": 100},
				{"id": "person-research", "status": "in_progress", "progress": 40}
			]
		}`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	snapshot, err := c.Status(context.Background(), "run-55")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if snapshot.Status != types.RunProcessing {
		t.Errorf("expected processing, got %q", snapshot.Status)
	}
	if snapshot.CurrentStage != "person-research" {
		t.Errorf("expected person-research, got %q", snapshot.CurrentStage)
	}
	if snapshot.OverallProgress != 47.5 {
		t.Errorf("expected 47.5, got %v", snapshot.OverallProgress)
	}
	if snapshot.EstimatedSecondsRemain == nil || *snapshot.EstimatedSecondsRemain != 118 {
		t.Errorf("unexpected estimate %v", snapshot.EstimatedSecondsRemain)
	}
	if len(snapshot.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(snapshot.Stages))
	}
	if snapshot.Stages[1].Status != types.StageInProgress {
		t.Errorf("expected in_progress, got %q", snapshot.Stages[1].Status)
	}
}

func TestResultsPassesPayloadThrough(t *testing.T) {
	payload := `{"match_score": 87, "summary": "strong fit"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/research/run-55/results" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	raw, err := c.Results(context.Background(), "run-55")
	if err != nil {
		t.Fatalf("Results() error: %v", err)
	}
	if string(raw) != payload {
		t.Errorf("payload altered: %s", raw)
	}
}

func TestCancelPostsToCancelEndpoint(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.Method + " " + r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := c.Cancel(context.Background(), "run-3"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if got := path.Load(); got != "POST /api/research/run-3/cancel" {
		t.Errorf("unexpected request %v", got)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("expected error for blank base URL")
	}
}
