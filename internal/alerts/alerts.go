// Package alerts manages per-category notification delivery preferences:
// which channels (email, push, in-app) each notification category may
// use. Updates are optimistic against the cached preference set.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"moviesnow/internal/api"
	"moviesnow/internal/notifications"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// Subscription is the delivery preference for one notification category.
type Subscription struct {
	Category notifications.Type `json:"category"`
	Email    bool               `json:"email"`
	Push     bool               `json:"push"`
	InApp    bool               `json:"in_app"`
}

// cacheKey is the query-cache key for the preference set.
func cacheKey() querycache.Key {
	return querycache.NewKey("alerts", "subscriptions")
}

// Service exposes the alert-subscription operations.
type Service struct {
	client *api.Client
	cache  *querycache.Cache
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the subscription operations to the transport and
// cache.
func NewService(client *api.Client, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		client: client,
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// subscriptionRecord tolerates the channel flag spellings.
type subscriptionRecord struct {
	Category string `json:"category"`
	Type     string `json:"type"`

	Email        *bool `json:"email"`
	EmailEnabled *bool `json:"email_enabled"`

	Push        *bool `json:"push"`
	PushEnabled *bool `json:"push_enabled"`

	InApp        *bool `json:"in_app"`
	InAppEnabled *bool `json:"in_app_enabled"`
}

// decodeSubscriptions normalizes a preference response. Accepted shapes,
// in priority order: {"subscriptions":[...]}; a bare array;
// {"data":{...}} nesting either; a map keyed by category
// ({"security":{"email":true},...}). Empty/204 bodies yield an empty
// set. One subscription per category; the last spelling wins.
func decodeSubscriptions(data []byte) ([]Subscription, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Subscription{}, nil
	}

	items, _, err := api.DecodeCollection(trimmed, "subscriptions")
	if err == nil {
		out := make([]Subscription, 0, len(items))
		for _, item := range items {
			var rec subscriptionRecord
			if err := json.Unmarshal(item, &rec); err != nil {
				continue
			}
			category := rec.Category
			if category == "" {
				category = rec.Type
			}
			if category == "" {
				continue
			}
			out = append(out, rec.normalize(category))
		}
		return dedupe(out), nil
	}

	// Map keyed by category: {"security":{"email":true}, ...}. Pagination
	// metadata keys that sneak in alongside are skipped by the record
	// decode failing or the flags all being absent.
	var byCategory map[string]json.RawMessage
	if mapErr := json.Unmarshal(trimmed, &byCategory); mapErr != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized alert subscriptions response")
	}
	out := make([]Subscription, 0, len(byCategory))
	for category, raw := range byCategory {
		var rec subscriptionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.Email == nil && rec.EmailEnabled == nil && rec.Push == nil &&
			rec.PushEnabled == nil && rec.InApp == nil && rec.InAppEnabled == nil {
			continue
		}
		out = append(out, rec.normalize(category))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return dedupe(out), nil
}

func (r *subscriptionRecord) normalize(category string) Subscription {
	s := Subscription{Category: notifications.ParseType(category)}
	if r.Email != nil {
		s.Email = *r.Email
	} else if r.EmailEnabled != nil {
		s.Email = *r.EmailEnabled
	}
	if r.Push != nil {
		s.Push = *r.Push
	} else if r.PushEnabled != nil {
		s.Push = *r.PushEnabled
	}
	if r.InApp != nil {
		s.InApp = *r.InApp
	} else if r.InAppEnabled != nil {
		s.InApp = *r.InAppEnabled
	}
	return s
}

// dedupe keeps one subscription per category, last occurrence winning.
func dedupe(items []Subscription) []Subscription {
	index := make(map[notifications.Type]int, len(items))
	out := items[:0]
	for _, s := range items {
		if at, ok := index[s.Category]; ok {
			out[at] = s
			continue
		}
		index[s.Category] = len(out)
		out = append(out, s)
	}
	return out
}

// Get returns the account's delivery preferences. Results are cached;
// concurrent callers share one fetch.
func (s *Service) Get(ctx context.Context) ([]Subscription, error) {
	return querycache.GetOrFetch(ctx, s.cache, cacheKey(), func(ctx context.Context) ([]Subscription, error) {
		var raw json.RawMessage
		req := api.NewRequest("alerts.get", http.MethodGet, "/api/v1/alerts/subscriptions")
		if err := s.client.Do(ctx, req, &raw); err != nil {
			return nil, err
		}
		return decodeSubscriptions(raw)
	})
}

// Update replaces the delivery preferences. The cached set updates
// optimistically — the UI reflects the change at once — and rolls back to
// the pre-mutation snapshot if the server refuses; either way the cached
// set is invalidated on settle so the next read reconciles with the
// server's truth.
func (s *Service) Update(ctx context.Context, subs []Subscription) error {
	for _, sub := range subs {
		if sub.Category == "" {
			return apierror.New(apierror.CodeValidation, "subscription category is required")
		}
	}

	next := dedupe(append([]Subscription{}, subs...))
	key := api.NewIdempotencyKey()
	return querycache.RunMutation(ctx, s.cache, querycache.Mutation[[]Subscription]{
		Key: cacheKey(),
		Apply: func([]Subscription) []Subscription {
			return next
		},
		Call: func(ctx context.Context) error {
			req := api.NewRequest("alerts.update", http.MethodPatch, "/api/v1/alerts/subscriptions",
				api.WithIdempotencyKey(key),
				api.WithJSON(map[string][]Subscription{"subscriptions": next}),
			)
			return s.client.Do(ctx, req, nil)
		},
	})
}
