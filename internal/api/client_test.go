package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"transmute/internal/api"
	"transmute/internal/catalog"
	"transmute/internal/jobs"
	"transmute/internal/services"
)

func TestNewClientEmptyBind(t *testing.T) {
	client, err := api.NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	if _, err := client.Status(context.Background()); !api.IsUnavailable(err) {
		t.Fatalf("expected unavailable error from nil client, got %v", err)
	}
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("status")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.JobListResponse{Jobs: []jobs.Job{{ID: "a", Status: jobs.StatusFailed}}})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	list, err := client.Jobs(context.Background(), jobs.StatusFailed)
	if err != nil {
		t.Fatalf("Jobs error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotQuery != "failed" {
		t.Fatalf("unexpected status query %q", gotQuery)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Fatalf("unexpected jobs %+v", list)
	}
}

func TestClientSubmitPostsRequest(t *testing.T) {
	var got jobs.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(jobs.Submission{JobID: "job-1"})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	sub, err := client.Submit(context.Background(), jobs.Request{Input: "/tmp/a.md", To: catalog.Format("html")})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if sub.JobID != "job-1" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if got.Input != "/tmp/a.md" || got.To != "html" {
		t.Fatalf("request not forwarded: %+v", got)
	}
}

func TestClientMapsErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job not found", Kind: "not_found"})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	_, err := client.Job(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found marker, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected api.Error with 404, got %#v", err)
	}
	if err.Error() != "job not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsUnavailableRecognizesDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, _ := api.NewClient(addr, "")
	_, err := client.Status(context.Background())
	if !api.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
