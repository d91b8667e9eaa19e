package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/internal/service/cache"
	"DeepResearch/pkg/logger"
)

// Factory builds an authenticated adapter for one user's credentials.
type Factory func(user models.UserContext) domrepo.Adapter

// Resolver picks a source in order: the user's own exchange account, the
// shared public venue, the candle warehouse. No source is not an error.
type Resolver struct {
	public    domrepo.Adapter
	warehouse domrepo.Adapter
	factory   Factory
	users     *cache.TTLCache[domrepo.Adapter]
	log       *logger.Logger
}

var _ domrepo.AdapterResolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithPublic sets the adapter used without user credentials.
func WithPublic(a domrepo.Adapter) Option {
	return func(r *Resolver) { r.public = a }
}

// WithWarehouse sets the last-resort candle source.
func WithWarehouse(a domrepo.Adapter) Option {
	return func(r *Resolver) { r.warehouse = a }
}

// WithUserAdapters enables per-user adapters, keeping at most max of them for ttl.
func WithUserAdapters(f Factory, max int, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.factory = f
		r.users = cache.NewTTLCache[domrepo.Adapter](max, ttl)
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(_ context.Context, user models.UserContext) (domrepo.Adapter, bool) {
	if r.factory != nil && hasCredentials(user) {
		key := credentialKey(user)
		a := r.users.GetOrCreate(key, func() domrepo.Adapter {
			r.log.Debug("creating user adapter", logger.String("user_id", user.UserID))
			return r.factory(user)
		})
		if a != nil {
			return a, true
		}
	}
	if r.public != nil {
		return r.public, true
	}
	if r.warehouse != nil {
		return r.warehouse, true
	}
	return nil, false
}

// Sources lists the configured fallback sources by name.
func (r *Resolver) Sources() []string {
	var out []string
	if r.factory != nil {
		out = append(out, "user-credentials")
	}
	if r.public != nil {
		out = append(out, r.public.Name())
	}
	if r.warehouse != nil {
		out = append(out, r.warehouse.Name())
	}
	return out
}

func hasCredentials(u models.UserContext) bool {
	if u.PublicOnly || u.APIKey == "" || u.SecretKey == "" {
		return false
	}
	ex := strings.ToLower(u.Exchange)
	return ex == "" || ex == "binance"
}

// credentialKey keys the adapter on the credentials themselves so a rotated
// key gets a fresh client. Secrets are hashed, never stored as keys.
func credentialKey(u models.UserContext) string {
	h := sha256.Sum256([]byte(u.APIKey + "\x00" + u.SecretKey))
	return u.UserID + ":" + hex.EncodeToString(h[:8])
}
