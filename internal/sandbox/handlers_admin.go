package sandbox

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func bundlePayload(b *bundle) map[string]any {
	return map[string]any{
		"id":         b.ID,
		"title":      b.Title,
		"type":       b.Type,
		"quality":    b.Quality,
		"format":     b.Format,
		"size_bytes": b.SizeBytes,
		"premium":    b.Premium,
		"status":     b.Status,
		"created_at": b.CreatedAt,
		"updated_at": b.UpdatedAt,
	}
}

// handleBundlesList serves the download-package catalog, newest first.
func (s *Server) handleBundlesList(w http.ResponseWriter, r *http.Request) {
	all := s.store.listBundles()
	out := make([]map[string]any, 0, len(all))
	for _, b := range all {
		out = append(out, bundlePayload(b))
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("bundles", out, len(out)))
}

type bundleCreateBody struct {
	Title     string `json:"title" validate:"required,min=1,max=200"`
	Type      string `json:"type" validate:"required,oneof=movie episode season series"`
	Quality   string `json:"quality" validate:"required,oneof=480p 720p 1080p 2160p"`
	Format    string `json:"format" validate:"required,oneof=mp4 mkv webm"`
	SizeBytes int64  `json:"size_bytes" validate:"omitempty,min=0"`
	Premium   bool   `json:"premium"`
}

func (s *Server) handleBundleCreate(w http.ResponseWriter, r *http.Request) {
	var body bundleCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	created := s.store.createBundle(&bundle{
		Title:     body.Title,
		Type:      body.Type,
		Quality:   body.Quality,
		Format:    body.Format,
		SizeBytes: body.SizeBytes,
		Premium:   body.Premium,
	})
	s.writeJSON(w, http.StatusCreated, s.shapes.wrapOne("bundle", bundlePayload(created)))
}

type bundleUpdateBody struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=200"`
	Quality *string `json:"quality" validate:"omitempty,oneof=480p 720p 1080p 2160p"`
	Format  *string `json:"format" validate:"omitempty,oneof=mp4 mkv webm"`
	Premium *bool   `json:"premium"`
	Status  *string `json:"status" validate:"omitempty,oneof=pending processing ready failed"`
}

func (s *Server) handleBundleUpdate(w http.ResponseWriter, r *http.Request) {
	var body bundleUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	updated, ok := s.store.updateBundle(chi.URLParam(r, "id"), func(b *bundle) {
		if body.Title != nil {
			b.Title = *body.Title
		}
		if body.Quality != nil {
			b.Quality = *body.Quality
		}
		if body.Format != nil {
			b.Format = *body.Format
		}
		if body.Premium != nil {
			b.Premium = *body.Premium
		}
		if body.Status != nil {
			b.Status = *body.Status
		}
	})
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such bundle")
		return
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrapOne("bundle", bundlePayload(updated)))
}

func (s *Server) handleBundleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.store.deleteBundle(chi.URLParam(r, "id")) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such bundle")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleUpload accepts an upload registration. The sandbox doesn't
// receive media bytes; it records the intent and answers as the real
// ingest endpoint would.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path      string `json:"path"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     uuid.New().String(),
		"path":   body.Path,
		"status": "received",
	})
}

func rolePayload(r *role) map[string]any {
	perms := make([]map[string]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, map[string]string{
			"resource": p.Resource,
			"action":   p.Action,
			"category": p.Category,
		})
	}
	return map[string]any{
		"id":          r.ID,
		"name":        r.Name,
		"color":       r.Color,
		"icon":        r.Icon,
		"system":      r.System,
		"permissions": perms,
	}
}

// handleRolesList serves the role catalog.
func (s *Server) handleRolesList(w http.ResponseWriter, r *http.Request) {
	all := s.store.listRoles()
	out := make([]map[string]any, 0, len(all))
	for _, role := range all {
		out = append(out, rolePayload(role))
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("roles", out, len(out)))
}

type roleCreateBody struct {
	Name        string   `json:"name" validate:"required,min=2,max=50"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
	Icon        string   `json:"icon"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (s *Server) handleRoleCreate(w http.ResponseWriter, r *http.Request) {
	var body roleCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	perms, err := s.resolvePermissions(body.Permissions)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	created := s.store.createRole(&role{
		Name:        body.Name,
		Color:       body.Color,
		Icon:        body.Icon,
		Permissions: perms,
	})
	s.writeJSON(w, http.StatusCreated, s.shapes.wrapOne("role", rolePayload(created)))
}

type roleUpdateBody struct {
	Name        *string   `json:"name" validate:"omitempty,min=2,max=50"`
	Color       *string   `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string   `json:"icon"`
	Permissions *[]string `json:"permissions"`
}

func (s *Server) handleRoleUpdate(w http.ResponseWriter, r *http.Request) {
	var body roleUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	var perms []permission
	if body.Permissions != nil {
		resolved, err := s.resolvePermissions(*body.Permissions)
		if err != nil {
			s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
			return
		}
		perms = resolved
	}

	updated, found, changed := s.store.updateRole(chi.URLParam(r, "id"), func(role *role) {
		if body.Name != nil {
			role.Name = *body.Name
		}
		if body.Color != nil {
			role.Color = *body.Color
		}
		if body.Icon != nil {
			role.Icon = *body.Icon
		}
		if body.Permissions != nil {
			role.Permissions = perms
		}
	})
	switch {
	case !found:
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such role")
	case !changed:
		s.writeError(w, r, http.StatusForbidden, "forbidden", "system roles cannot be modified")
	default:
		s.writeJSON(w, http.StatusOK, s.shapes.wrapOne("role", rolePayload(updated)))
	}
}

func (s *Server) handleRoleDelete(w http.ResponseWriter, r *http.Request) {
	found, deleted := s.store.deleteRole(chi.URLParam(r, "id"))
	switch {
	case !found:
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such role")
	case !deleted:
		s.writeError(w, r, http.StatusForbidden, "forbidden", "system roles cannot be deleted")
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handlePermissionsList serves the permission catalog.
func (s *Server) handlePermissionsList(w http.ResponseWriter, r *http.Request) {
	perms := s.store.permissionCatalog()
	out := make([]map[string]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, map[string]string{
			"resource": p.Resource,
			"action":   p.Action,
			"category": p.Category,
		})
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("permissions", out, len(out)))
}

// handleRoleAssign grants a role to a user.
func (s *Server) handleRoleAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoleID string `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RoleID == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "role_id is required")
		return
	}
	if !s.store.assignRole(chi.URLParam(r, "id"), body.RoleID) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such user or role")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// resolvePermissions maps "resource:action" keys to catalog entries.
func (s *Server) resolvePermissions(keys []string) ([]permission, error) {
	catalog := s.store.permissionCatalog()
	byKey := make(map[string]permission, len(catalog))
	for _, p := range catalog {
		byKey[p.Resource+":"+p.Action] = p
	}

	out := make([]permission, 0, len(keys))
	for _, key := range keys {
		p, ok := byKey[strings.TrimSpace(key)]
		if !ok {
			return nil, &unknownPermissionError{key: key}
		}
		out = append(out, p)
	}
	return out, nil
}

type unknownPermissionError struct{ key string }

func (e *unknownPermissionError) Error() string {
	return "unknown permission " + e.key
}
