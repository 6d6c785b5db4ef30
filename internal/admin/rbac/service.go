package rbac

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
	"moviesnow/internal/theme"
	"moviesnow/pkg/apierror"
)

func rolesKey() querycache.Key       { return querycache.NewKey("rbac", "roles") }
func permissionsKey() querycache.Key { return querycache.NewKey("rbac", "permissions") }

// Service exposes the role and permission operations.
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

// NewService wires the RBAC operations to the transport and cache.
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

// roleRecord tolerates the role field spellings.
type roleRecord struct {
	ID     string `json:"id"`
	RoleID string `json:"role_id"`

	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`

	System   *bool `json:"system"`
	IsSystem *bool `json:"is_system"`
	BuiltIn  *bool `json:"built_in"`

	Permissions []json.RawMessage `json:"permissions"`
}

// permissionRecord tolerates both the structured and the compact
// "resource:action" permission spellings.
type permissionRecord struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Category string `json:"category"`
	Group    string `json:"group"`
}

func (r *roleRecord) normalize() Role {
	role := Role{
		ID:    firstNonEmpty(r.ID, r.RoleID),
		Name:  r.Name,
		Color: theme.Color(r.Color),
		Icon:  ParseIcon(r.Icon),
	}
	if role.Color == "" || !theme.Valid(role.Color) {
		role.Color = DefaultColor
	}
	switch {
	case r.System != nil:
		role.System = *r.System
	case r.IsSystem != nil:
		role.System = *r.IsSystem
	case r.BuiltIn != nil:
		role.System = *r.BuiltIn
	}
	for _, raw := range r.Permissions {
		if p, ok := decodePermission(raw); ok {
			role.Permissions = append(role.Permissions, p)
		}
	}
	return role
}

// decodePermission accepts a {resource, action, category} object or a
// compact "resource:action" string.
func decodePermission(raw json.RawMessage) (Permission, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Permission{}, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Permission{}, false
		}
		resource, action, found := strings.Cut(s, ":")
		if !found || resource == "" || action == "" {
			return Permission{}, false
		}
		return Permission{Resource: resource, Action: action}, true
	}
	var rec permissionRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Resource == "" || rec.Action == "" {
		return Permission{}, false
	}
	category := rec.Category
	if category == "" {
		category = rec.Group
	}
	return Permission{Resource: rec.Resource, Action: rec.Action, Category: category}, true
}

// decodeRoles normalizes a role listing: bare array, {"roles":[...]},
// {"items":[...]}, or {"data":{...}} nesting either.
func decodeRoles(data []byte) ([]Role, error) {
	items, _, err := api.DecodeCollection(data, "roles")
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized roles response")
	}
	out := make([]Role, 0, len(items))
	for _, item := range items {
		var rec roleRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		role := rec.normalize()
		if role.ID == "" {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

// ListRoles returns every role. Results are cached.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return querycache.GetOrFetch(ctx, s.cache, rolesKey(), func(ctx context.Context) ([]Role, error) {
		var raw json.RawMessage
		req := api.NewRequest("rbac.roles_list", http.MethodGet, "/api/v1/admin/roles")
		if err := s.client.Do(ctx, req, &raw); err != nil {
			return nil, err
		}
		return decodeRoles(raw)
	})
}

// ListPermissions returns the permission catalog. Results are cached.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return querycache.GetOrFetch(ctx, s.cache, permissionsKey(), func(ctx context.Context) ([]Permission, error) {
		var raw json.RawMessage
		req := api.NewRequest("rbac.permissions_list", http.MethodGet, "/api/v1/admin/permissions")
		if err := s.client.Do(ctx, req, &raw); err != nil {
			return nil, err
		}
		items, _, err := api.DecodeCollection(raw, "permissions")
		if err != nil {
			return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized permissions response")
		}
		out := make([]Permission, 0, len(items))
		for _, item := range items {
			if p, ok := decodePermission(item); ok {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// CreateRole registers a new role. An omitted color gets DefaultColor;
// the icon is normalized onto the closed set before submission.
func (s *Service) CreateRole(ctx context.Context, params CreateParams) (*Role, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeValidation, "invalid role parameters")
	}
	if params.Color == "" {
		params.Color = string(DefaultColor)
	}
	params.Icon = string(ParseIcon(params.Icon))

	var raw json.RawMessage
	req := api.NewRequest("rbac.role_create", http.MethodPost, "/api/v1/admin/roles",
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithJSON(params),
	)
	err := s.client.Do(ctx, req, &raw)
	s.cache.Invalidate(rolesKey())
	if err != nil {
		return nil, err
	}

	role, err := decodeRole(raw)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "role created", "id", role.ID, "name", role.Name)
	return role, nil
}

// UpdateRole applies a partial change. System roles refuse edits before
// any network call.
func (s *Service) UpdateRole(ctx context.Context, id string, params UpdateParams) (*Role, error) {
	if id == "" {
		return nil, apierror.New(apierror.CodeValidation, "role id is required")
	}
	if err := s.validate.Struct(params); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeValidation, "invalid role parameters")
	}
	if err := s.refuseSystemRole(id, "modified"); err != nil {
		return nil, err
	}
	if params.Icon != nil {
		normalized := string(ParseIcon(*params.Icon))
		params.Icon = &normalized
	}

	var raw json.RawMessage
	req := api.NewRequest("rbac.role_update", http.MethodPatch,
		"/api/v1/admin/roles/"+url.PathEscape(id),
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithJSON(params),
	)
	err := s.client.Do(ctx, req, &raw)
	s.cache.Invalidate(rolesKey())
	if err != nil {
		return nil, err
	}
	return decodeRole(raw)
}

// DeleteRole removes a role. Destructive, so it requires a step-up
// token; system roles refuse before any network call.
func (s *Service) DeleteRole(ctx context.Context, id, reauthToken string) error {
	if id == "" {
		return apierror.New(apierror.CodeValidation, "role id is required")
	}
	if reauthToken == "" {
		return apierror.New(apierror.CodeValidation, "role deletion requires reauthentication")
	}
	if err := s.refuseSystemRole(id, "deleted"); err != nil {
		return err
	}

	req := api.NewRequest("rbac.role_delete", http.MethodDelete,
		"/api/v1/admin/roles/"+url.PathEscape(id),
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithReauth(reauthToken),
	)
	err := s.client.Do(ctx, req, nil)
	s.cache.Invalidate(rolesKey())
	return err
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return apierror.New(apierror.CodeValidation, "user id and role id are required")
	}

	req := api.NewRequest("rbac.role_assign", http.MethodPost,
		"/api/v1/admin/users/"+url.PathEscape(userID)+"/roles",
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithJSON(map[string]string{"role_id": roleID}),
	)
	return s.client.Do(ctx, req, nil)
}

// refuseSystemRole rejects edits to roles the cached list marks as
// system-owned. A cold cache defers to the server's own guard.
func (s *Service) refuseSystemRole(id, verb string) error {
	cached, ok := querycache.Lookup[[]Role](s.cache, rolesKey())
	if !ok {
		return nil
	}
	for _, role := range cached {
		if role.ID == id && role.System {
			return apierror.New(apierror.CodeForbidden, "system role "+role.Name+" cannot be "+verb)
		}
	}
	return nil
}

// decodeRole normalizes a single-role response, tolerating a
// {"role":{...}} or {"data":{...}} wrapper.
func decodeRole(data []byte) (*Role, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, apierror.New(apierror.CodeInternal, "empty role response")
	}

	var wrapper struct {
		Role json.RawMessage `json:"role"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil {
		if len(strings.TrimSpace(string(wrapper.Role))) > 0 {
			return decodeRole(wrapper.Role)
		}
		if len(strings.TrimSpace(string(wrapper.Data))) > 0 {
			return decodeRole(wrapper.Data)
		}
	}

	var rec roleRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized role response")
	}
	role := rec.normalize()
	if role.ID == "" {
		return nil, apierror.New(apierror.CodeInternal, "role response carries no identifier")
	}
	return &role, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
