package services_test

import (
	"context"
	"testing"

	"transmute/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithBatchID(ctx, "batch-7")
	ctx = services.WithStep(ctx, "execute")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if id, ok := services.BatchIDFromContext(ctx); !ok || id != "batch-7" {
		t.Fatalf("unexpected batch id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "execute" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStepBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
}
