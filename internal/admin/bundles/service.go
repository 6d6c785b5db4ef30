package bundles

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// listKey is the query-cache key for one filtered listing.
func listKey(f Filter, p api.Page) querycache.Key {
	premium := "0"
	if f.PremiumOnly {
		premium = "1"
	}
	return querycache.NewKey("bundles",
		"q="+strings.ToLower(f.Search),
		"type="+string(f.Type),
		"status="+string(f.Status),
		"premium="+premium,
		"cursor="+p.Cursor,
	)
}

// Service exposes the admin bundle operations.
type Service struct {
	client   *api.Client
	cache    *querycache.Cache
	logger   *slog.Logger
	validate *validator.Validate
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

// NewService wires the bundle operations to the transport and cache.
func NewService(client *api.Client, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		client:   client,
		cache:    cache,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Listing is one fetched page of bundles.
type Listing struct {
	Items []Bundle
	Page  api.PageInfo
}

// List fetches a page of bundles matching the filter. Results are cached
// per filter and page.
func (s *Service) List(ctx context.Context, filter Filter, page api.Page) (*Listing, error) {
	return querycache.GetOrFetch(ctx, s.cache, listKey(filter, page), func(ctx context.Context) (*Listing, error) {
		return s.fetch(ctx, filter, page)
	})
}

func (s *Service) fetch(ctx context.Context, filter Filter, page api.Page) (*Listing, error) {
	opts := []api.RequestOption{api.WithPage(page)}
	if filter.Search != "" {
		opts = append(opts, api.WithQuery("search", filter.Search))
	}
	if filter.Type != "" {
		opts = append(opts, api.WithQuery("type", string(filter.Type)))
	}
	if filter.Status != "" {
		opts = append(opts, api.WithQuery("status", string(filter.Status)))
	}
	if filter.PremiumOnly {
		opts = append(opts, api.WithQuery("premium", "true"))
	}

	var raw json.RawMessage
	req := api.NewRequest("bundles.list", http.MethodGet, "/api/v1/admin/bundles", opts...)
	if err := s.client.Do(ctx, req, &raw); err != nil {
		return nil, err
	}

	items, info, err := decodeBundles(raw)
	if err != nil {
		return nil, err
	}
	// Deployments differ on server-side filtering; apply locally so the
	// contract holds either way.
	items = applyFilter(items, filter)
	return &Listing{Items: items, Page: info}, nil
}

func applyFilter(items []Bundle, f Filter) []Bundle {
	if f.Search == "" && f.Type == "" && f.Status == "" && !f.PremiumOnly {
		return items
	}
	needle := strings.ToLower(f.Search)
	out := items[:0]
	for _, b := range items {
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.PremiumOnly && !b.Premium {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(b.Title), needle) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ComputeStats derives page-level stats from fetched bundles. Shares are
// fractions of the page, not of the server's collection.
func ComputeStats(items []Bundle) Stats {
	stats := Stats{
		Total:    len(items),
		ByType:   make(map[BundleType]int),
		ByStatus: make(map[Status]int),
	}
	ready, premium := 0, 0
	for _, b := range items {
		stats.TotalBytes += b.SizeBytes
		stats.ByType[b.Type]++
		stats.ByStatus[b.Status]++
		if b.Status == StatusReady {
			ready++
		}
		if b.Premium {
			premium++
		}
	}
	if stats.Total > 0 {
		stats.ReadyShare = float64(ready) / float64(stats.Total)
		stats.PremiumShare = float64(premium) / float64(stats.Total)
	}
	return stats
}

// Create registers a new bundle. Params are validated before any network
// call; validation failures surface as CodeValidation and are never
// retried.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Bundle, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeValidation, "invalid bundle parameters")
	}

	var raw json.RawMessage
	req := api.NewRequest("bundles.create", http.MethodPost, "/api/v1/admin/bundles",
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithJSON(params),
	)
	err := s.client.Do(ctx, req, &raw)
	s.cache.InvalidateScope("bundles")
	if err != nil {
		return nil, err
	}

	bundle, err := decodeBundle(raw)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "bundle created", "id", bundle.ID, "type", string(bundle.Type))
	return bundle, nil
}

// Update applies a partial change to a bundle.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Bundle, error) {
	if id == "" {
		return nil, apierror.New(apierror.CodeValidation, "bundle id is required")
	}
	if err := s.validate.Struct(params); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeValidation, "invalid bundle parameters")
	}

	var raw json.RawMessage
	req := api.NewRequest("bundles.update", http.MethodPatch,
		"/api/v1/admin/bundles/"+url.PathEscape(id),
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithJSON(params),
	)
	err := s.client.Do(ctx, req, &raw)
	s.cache.InvalidateScope("bundles")
	if err != nil {
		return nil, err
	}
	return decodeBundle(raw)
}

// Delete removes a bundle. Destructive, so it requires a step-up token.
func (s *Service) Delete(ctx context.Context, id, reauthToken string) error {
	if id == "" {
		return apierror.New(apierror.CodeValidation, "bundle id is required")
	}
	if reauthToken == "" {
		return apierror.New(apierror.CodeValidation, "bundle deletion requires reauthentication")
	}

	req := api.NewRequest("bundles.delete", http.MethodDelete,
		"/api/v1/admin/bundles/"+url.PathEscape(id),
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithReauth(reauthToken),
	)
	err := s.client.Do(ctx, req, nil)
	s.cache.InvalidateScope("bundles")
	return err
}
