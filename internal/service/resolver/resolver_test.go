package resolver

import (
	"context"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

type named string

func (n named) Name() string { return string(n) }

func TestResolveOrder(t *testing.T) {
	built := 0
	r := New(
		WithPublic(named("public")),
		WithWarehouse(named("warehouse")),
		WithUserAdapters(func(u models.UserContext) domrepo.Adapter {
			built++
			return named("user:" + u.UserID)
		}, 8, time.Minute),
	)
	ctx := context.Background()

	withKeys := models.UserContext{UserID: "u1", APIKey: "k", SecretKey: "s"}
	a, ok := r.Resolve(ctx, withKeys)
	if !ok || a.Name() != "user:u1" {
		t.Fatalf("want user adapter, got %v %v", a, ok)
	}
	r.Resolve(ctx, withKeys)
	if built != 1 {
		t.Fatalf("user adapter built %d times, want 1", built)
	}

	a, _ = r.Resolve(ctx, models.UserContext{UserID: "u1", APIKey: "k", SecretKey: "s", PublicOnly: true})
	if a.Name() != "public" {
		t.Fatalf("public-only user got %s", a.Name())
	}
	a, _ = r.Resolve(ctx, models.UserContext{UserID: "u2", Exchange: "kraken", APIKey: "k", SecretKey: "s"})
	if a.Name() != "public" {
		t.Fatalf("other exchange got %s", a.Name())
	}
}

func TestResolveFallsBackToWarehouse(t *testing.T) {
	r := New(WithWarehouse(named("warehouse")))
	a, ok := r.Resolve(context.Background(), models.UserContext{})
	if !ok || a.Name() != "warehouse" {
		t.Fatalf("want warehouse, got %v %v", a, ok)
	}
}

func TestResolveNothingConfigured(t *testing.T) {
	if _, ok := New().Resolve(context.Background(), models.UserContext{UserID: "x"}); ok {
		t.Fatalf("expected no adapter")
	}
}

func TestRotatedKeyGetsNewAdapter(t *testing.T) {
	built := 0
	r := New(WithUserAdapters(func(u models.UserContext) domrepo.Adapter {
		built++
		return named(u.APIKey)
	}, 8, time.Minute))
	ctx := context.Background()
	r.Resolve(ctx, models.UserContext{UserID: "u", APIKey: "k1", SecretKey: "s"})
	a, _ := r.Resolve(ctx, models.UserContext{UserID: "u", APIKey: "k2", SecretKey: "s"})
	if built != 2 || a.Name() != "k2" {
		t.Fatalf("built=%d name=%s", built, a.Name())
	}
}
