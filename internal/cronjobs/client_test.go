package cronjobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newClient(url string) *Client {
	return NewClient(Options{BaseURL: url, Timeout: time.Second}, zerolog.Nop())
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newClient(srv.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check should pass: %v", err)
	}
}

func TestHealthCheckUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := newClient(srv.URL).HealthCheck(context.Background()); err == nil {
		t.Fatal("HTTP 503 应返回错误")
	}
}

func TestRegisterJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req RegisterJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode register payload: %v", err)
		}
		if req.WebhookSecret != "secret" {
			t.Fatalf("webhook secret not forwarded: %#v", req)
		}
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Name: req.Name, CronExpression: req.CronExpression, Enabled: true})
	}))
	defer srv.Close()

	job, err := newClient(srv.URL).RegisterJob(context.Background(), RegisterJobRequest{
		Name:           "crypto-tracker",
		CronExpression: "*/5 * * * *",
		Timezone:       "UTC",
		WebhookURL:     "http://localhost:9090/webhook",
		WebhookSecret:  "secret",
	})
	if err != nil {
		t.Fatalf("register should succeed: %v", err)
	}
	if job.ID != "job-1" || job.Name != "crypto-tracker" {
		t.Fatalf("unexpected job: %#v", job)
	}
}

func TestRegisterJobRejectsBadExpression(t *testing.T) {
	// No server: validation must fail before any request is made.
	_, err := newClient("http://localhost:1").RegisterJob(context.Background(), RegisterJobRequest{
		Name:           "crypto-tracker",
		CronExpression: "not a cron expr",
	})
	if err == nil {
		t.Fatal("invalid cron expression 应返回错误")
	}
}

func TestListJobsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"a","name":"one"},{"id":"b","name":"two"}]`)
	}))
	defer srv.Close()

	jobs, err := newClient(srv.URL).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list should succeed: %v", err)
	}
	if len(jobs) != 2 || jobs[1].ID != "b" {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}
}

func TestListJobsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobs":[{"id":"a","name":"one"}]}`)
	}))
	defer srv.Close()

	jobs, err := newClient(srv.URL).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list should succeed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "one" {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}
}

func TestEnsureJobReplacesExisting(t *testing.T) {
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/jobs":
			fmt.Fprint(w, `[{"id":"old-1","name":"crypto-tracker"},{"id":"other","name":"unrelated"}]`)
		case r.Method == http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			_ = json.NewEncoder(w).Encode(Job{ID: "new-1", Name: "crypto-tracker"})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	job, err := newClient(srv.URL).EnsureJob(context.Background(), RegisterJobRequest{
		Name:           "crypto-tracker",
		CronExpression: "* * * * *",
	})
	if err != nil {
		t.Fatalf("ensure should succeed: %v", err)
	}
	if job.ID != "new-1" {
		t.Fatalf("unexpected job: %#v", job)
	}
	if len(deleted) != 1 || deleted[0] != "/jobs/old-1" {
		t.Fatalf("only the same-name job should be deleted, got %#v", deleted)
	}
}
