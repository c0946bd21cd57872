package core

import (
	"context"
	"testing"
	"time"
)

func TestExecutionContext_ChildInheritsRoot(t *testing.T) {
	parent := NewExecutionContext(context.Background(), Global(), nil, nil, "root-1")
	child := parent.Child("child-1")

	if child.Correlation.RootID != parent.Correlation.RootID {
		t.Fatalf("child root_id mismatch: %s != %s", child.Correlation.RootID, parent.Correlation.RootID)
	}
	if child.Correlation.ParentID != parent.Correlation.CorrelationID {
		t.Fatalf("child parent_id mismatch: %s != %s", child.Correlation.ParentID, parent.Correlation.CorrelationID)
	}
	if child.Correlation.CorrelationID == parent.Correlation.CorrelationID {
		t.Fatalf("child should mint a fresh correlation id")
	}
	if !parent.Correlation.IsRoot() {
		t.Fatalf("parent should be a root correlation context")
	}
	if child.Correlation.IsRoot() {
		t.Fatalf("child should not be a root correlation context")
	}
}

func TestExecutionContext_WithDeadline_ShorterWins(t *testing.T) {
	parent := NewExecutionContext(context.Background(), Global(), nil, nil, "root-1")
	near := time.Now().Add(10 * time.Millisecond)
	far := time.Now().Add(time.Hour)

	withNear, cancel1 := parent.WithDeadline(near)
	defer cancel1()
	withFar, cancel2 := withNear.WithDeadline(far)
	defer cancel2()

	d, ok := withFar.Deadline()
	if !ok {
		t.Fatalf("expected a deadline to be set")
	}
	if !d.Equal(near) {
		t.Fatalf("expected the shorter (near) deadline to win, got %v", d)
	}
}

func TestExecutionContext_TenantOrDefault(t *testing.T) {
	ec := NewExecutionContext(context.Background(), Global(), nil, nil, "root-1")
	if ec.TenantOrDefault() != "default" {
		t.Fatalf("expected default tenant, got %q", ec.TenantOrDefault())
	}

	tenanted := ec.WithTenant("acme")
	if tenanted.TenantOrDefault() != "acme" {
		t.Fatalf("expected tenant acme, got %q", tenanted.TenantOrDefault())
	}
	if ec.TenantOrDefault() != "default" {
		t.Fatalf("WithTenant should not mutate the original context")
	}
}

func TestExecutionContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ec := NewExecutionContext(ctx, Global(), nil, nil, "root-1")
	if ec.Cancelled() {
		t.Fatalf("fresh context should not be cancelled")
	}
	cancel()
	if !ec.Cancelled() {
		t.Fatalf("cancelled context should report Cancelled() == true")
	}
}
