package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/workbridge-io/workbridge/core/workflow"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestResolveRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.Save(ctx, &Connection{
		ID:    "conn-1",
		OrgID: "org-1",
		Type:  "api_key",
		Data:  map[string]any{"key": "k-123"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	creds, err := svc.Resolve(ctx, "org-1", "conn-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.Type != "api_key" || creds.Data["key"] != "k-123" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestResolveNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Resolve(context.Background(), "org-1", "missing")
	if !errors.Is(err, workflow.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestResolveExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	err := svc.Save(ctx, &Connection{
		ID:        "conn-1",
		OrgID:     "org-1",
		Type:      "oauth2",
		Data:      map[string]any{"token": "t"},
		ExpiresAt: &past,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = svc.Resolve(ctx, "org-1", "conn-1")
	if !errors.Is(err, workflow.ErrConnectionExpired) {
		t.Fatalf("expected ErrConnectionExpired, got %v", err)
	}
}

func TestResolveScopedToOrg(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.Save(ctx, &Connection{ID: "conn-1", OrgID: "org-1", Type: "api_key", Data: map[string]any{}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = svc.Resolve(ctx, "org-2", "conn-1")
	if !errors.Is(err, workflow.ErrConnectionNotFound) {
		t.Fatalf("expected cross-org lookup to fail, got %v", err)
	}
}
