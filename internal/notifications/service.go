package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// listKey is the query-cache key for one filtered listing. Distinct
// filters cache independently under the shared scope so a settled
// mutation can invalidate them all at once.
func listKey(f Filter, p api.Page) querycache.Key {
	return querycache.NewKey("notifications",
		"unread="+boolArg(f.UnreadOnly),
		"type="+string(f.Type),
		"priority="+string(f.Priority),
		"q="+strings.ToLower(f.Search),
		"cursor="+p.Cursor,
	)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Service exposes the notification feed operations.
type Service struct {
	client *api.Client
	cache  *querycache.Cache
	logger *slog.Logger
	now    func() time.Time
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

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the feed operations to the transport and cache.
func NewService(client *api.Client, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		client: client,
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Listing is one fetched page of the feed.
type Listing struct {
	Items []Notification
	Page  api.PageInfo
}

// List fetches a page of notifications matching the filter. Results are
// cached per filter and page; concurrent callers share one fetch.
func (s *Service) List(ctx context.Context, filter Filter, page api.Page) (*Listing, error) {
	return querycache.GetOrFetch(ctx, s.cache, listKey(filter, page), func(ctx context.Context) (*Listing, error) {
		return s.fetch(ctx, filter, page)
	})
}

func (s *Service) fetch(ctx context.Context, filter Filter, page api.Page) (*Listing, error) {
	opts := []api.RequestOption{api.WithPage(page)}
	if filter.UnreadOnly {
		opts = append(opts, api.WithQuery("unread", "true"))
	}
	if filter.Type != "" {
		opts = append(opts, api.WithQuery("type", string(filter.Type)))
	}
	if filter.Priority != "" {
		opts = append(opts, api.WithQuery("priority", string(filter.Priority)))
	}
	if filter.Search != "" {
		opts = append(opts, api.WithQuery("search", filter.Search))
	}

	var raw json.RawMessage
	req := api.NewRequest("notifications.list", http.MethodGet, "/api/v1/notifications", opts...)
	if err := s.client.Do(ctx, req, &raw); err != nil {
		return nil, err
	}

	items, info, err := decodeNotifications(raw)
	if err != nil {
		return nil, err
	}
	// The backend does not guarantee server-side filtering on every
	// deployment; apply the filter locally so the contract holds either
	// way.
	items = applyFilter(items, filter)
	return &Listing{Items: items, Page: info}, nil
}

// applyFilter keeps the entries matching every set constraint.
func applyFilter(items []Notification, f Filter) []Notification {
	if !f.UnreadOnly && f.Type == "" && f.Priority == "" && f.Search == "" {
		return items
	}
	needle := strings.ToLower(f.Search)
	out := items[:0]
	for _, n := range items {
		if f.UnreadOnly && n.Read {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.Priority != "" && n.Priority != f.Priority {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(n.Body), needle) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ComputeStats derives page-level stats from fetched items. Counts cover
// only what the page holds, not the server's full collection.
func ComputeStats(items []Notification) Stats {
	stats := Stats{
		Total:      len(items),
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
	}
	for _, n := range items {
		if !n.Read {
			stats.Unread++
		}
		if n.Pinned {
			stats.Pinned++
		}
		stats.ByType[n.Type]++
		stats.ByPriority[n.Priority]++
	}
	return stats
}

// MarkRead flags one notification as read. The cached page updates
// optimistically and rolls back if the server refuses.
func (s *Service) MarkRead(ctx context.Context, filter Filter, page api.Page, id string) error {
	if id == "" {
		return apierror.New(apierror.CodeValidation, "notification id is required")
	}
	return s.mutate(ctx, filter, page,
		"notifications.mark_read", "/api/v1/notifications/"+url.PathEscape(id)+"/read",
		func(n Notification) (Notification, bool) {
			if n.ID != id || n.Read {
				return n, false
			}
			n.Read = true
			n.ReadAt = s.now()
			return n, true
		})
}

// MarkAllRead flags every notification as read.
func (s *Service) MarkAllRead(ctx context.Context, filter Filter, page api.Page) error {
	return s.mutate(ctx, filter, page,
		"notifications.mark_all_read", "/api/v1/notifications/read-all",
		func(n Notification) (Notification, bool) {
			if n.Read {
				return n, false
			}
			n.Read = true
			n.ReadAt = s.now()
			return n, true
		})
}

// Pin keeps a notification at the top of the feed.
func (s *Service) Pin(ctx context.Context, filter Filter, page api.Page, id string) error {
	return s.setPinned(ctx, filter, page, id, true)
}

// Unpin releases a pinned notification.
func (s *Service) Unpin(ctx context.Context, filter Filter, page api.Page, id string) error {
	return s.setPinned(ctx, filter, page, id, false)
}

func (s *Service) setPinned(ctx context.Context, filter Filter, page api.Page, id string, pinned bool) error {
	if id == "" {
		return apierror.New(apierror.CodeValidation, "notification id is required")
	}
	operation, path := "notifications.pin", "/api/v1/notifications/"+url.PathEscape(id)+"/pin"
	if !pinned {
		operation, path = "notifications.unpin", "/api/v1/notifications/"+url.PathEscape(id)+"/unpin"
	}
	return s.mutate(ctx, filter, page, operation, path,
		func(n Notification) (Notification, bool) {
			if n.ID != id || n.Pinned == pinned {
				return n, false
			}
			n.Pinned = pinned
			return n, true
		})
}

// mutate runs one optimistic flag flip against the cached page, POSTs the
// change with a fresh idempotency key, and invalidates the whole
// notifications scope on settle so sibling filter caches reconcile too.
func (s *Service) mutate(ctx context.Context, filter Filter, page api.Page, operation, path string, transform func(Notification) (Notification, bool)) error {
	key := api.NewIdempotencyKey()
	err := querycache.RunMutation(ctx, s.cache, querycache.Mutation[*Listing]{
		Key: listKey(filter, page),
		Apply: func(current *Listing) *Listing {
			if current == nil {
				return current
			}
			next := &Listing{Items: make([]Notification, len(current.Items)), Page: current.Page}
			for i, n := range current.Items {
				next.Items[i], _ = transform(n)
			}
			sortNotifications(next.Items)
			return next
		},
		Call: func(ctx context.Context) error {
			req := api.NewRequest(operation, http.MethodPost, path, api.WithIdempotencyKey(key))
			return s.client.Do(ctx, req, nil)
		},
	})
	s.cache.InvalidateScope("notifications")
	return err
}
