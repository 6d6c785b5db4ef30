package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

func TestParseIcon(t *testing.T) {
	assert.Equal(t, IconCrown, ParseIcon("crown"))
	assert.Equal(t, IconFilm, ParseIcon("film"))
	assert.Equal(t, IconShield, ParseIcon("sparkles"), "unknown icons fall back to shield")
	assert.Equal(t, IconShield, ParseIcon(""))
	assert.NotEmpty(t, Icon("star").Glyph())
}

func TestGroupPermissions(t *testing.T) {
	perms := []Permission{
		{Resource: "bundles", Action: "write", Category: "content"},
		{Resource: "bundles", Action: "read", Category: "content"},
		{Resource: "roles", Action: "write", Category: "administration"},
		{Resource: "metrics", Action: "read"},
	}

	groups := GroupPermissions(perms)
	require.Len(t, groups, 3)
	assert.Equal(t, "bundles:read", groups["content"][0].Key(), "members sorted")
	assert.Len(t, groups["administration"], 1)
	assert.Len(t, groups["general"], 1, "empty category lands in general")
}

type rbacFixture struct {
	service *Service
	cache   *querycache.Cache
	deletes atomic.Int32
	patches atomic.Int32
}

func newRBACFixture(t *testing.T, rolesPayload string) *rbacFixture {
	t.Helper()
	fx := &rbacFixture{cache: querycache.New()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/admin/roles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rolesPayload))
	})
	mux.HandleFunc("GET /api/v1/admin/permissions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"permissions":[
			{"resource":"bundles","action":"read","category":"content"},
			"roles:write"
		]}`))
	})
	mux.HandleFunc("POST /api/v1/admin/roles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"role":{"id":"r9","name":"Curator","color":"#22c55e","icon":"film"}}`))
	})
	mux.HandleFunc("PATCH /api/v1/admin/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		fx.patches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r2","name":"Renamed","icon":"star"}`))
	})
	mux.HandleFunc("DELETE /api/v1/admin/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
		fx.deletes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL,
		api.WithTokenSource(api.StaticToken("admin-token")),
		api.WithRetryPolicy(api.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
	fx.service = NewService(client, fx.cache)
	return fx
}

const twoRoles = `{"roles":[
	{"id":"r1","name":"Owner","icon":"crown","color":"#8b5cf6","is_system":true,
	 "permissions":[{"resource":"bundles","action":"write","category":"content"},"roles:write"]},
	{"id":"r2","name":"Curator","icon":"sparkles","color":"not-a-color"}
]}`

func TestListRolesNormalizes(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	roles, err := fx.service.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)

	owner := roles[0]
	assert.Equal(t, IconCrown, owner.Icon)
	assert.True(t, owner.System, "is_system alias")
	require.Len(t, owner.Permissions, 2)
	assert.Equal(t, "roles:write", owner.Permissions[1].Key(), "compact spelling")

	curator := roles[1]
	assert.Equal(t, IconShield, curator.Icon, "unknown icon falls back")
	assert.Equal(t, DefaultColor, curator.Color, "invalid color falls back")
}

func TestListPermissionsMixedShapes(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	perms, err := fx.service.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "bundles:read", perms[0].Key())
	assert.Equal(t, "roles:write", perms[1].Key())
}

func TestSystemRoleRefusesEditsClientSide(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	_, err := fx.service.ListRoles(context.Background())
	require.NoError(t, err)

	err = fx.service.DeleteRole(context.Background(), "r1", "step-up")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeForbidden))
	assert.Equal(t, int32(0), fx.deletes.Load(), "system role guard must not reach the network")

	name := "Renamed"
	_, err = fx.service.UpdateRole(context.Background(), "r1", UpdateParams{Name: &name})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeForbidden))
	assert.Equal(t, int32(0), fx.patches.Load())
}

func TestNonSystemRoleEdits(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	_, err := fx.service.ListRoles(context.Background())
	require.NoError(t, err)

	name := "Renamed"
	role, err := fx.service.UpdateRole(context.Background(), "r2", UpdateParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", role.Name)

	require.NoError(t, fx.service.DeleteRole(context.Background(), "r2", "step-up"))
}

func TestCreateRoleDefaultsAndValidation(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	_, err := fx.service.CreateRole(context.Background(), CreateParams{Name: "x"})
	require.Error(t, err, "name below minimum length")
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))

	_, err = fx.service.CreateRole(context.Background(), CreateParams{Name: "Curator", Color: "teal"})
	require.Error(t, err, "non-hex color")

	role, err := fx.service.CreateRole(context.Background(), CreateParams{Name: "Curator", Icon: "film"})
	require.NoError(t, err)
	assert.Equal(t, "r9", role.ID)
	assert.Equal(t, IconFilm, role.Icon)
}

func TestDeleteRoleGuards(t *testing.T) {
	fx := newRBACFixture(t, twoRoles)

	err := fx.service.DeleteRole(context.Background(), "", "step-up")
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))

	err = fx.service.DeleteRole(context.Background(), "r2", "")
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))
}
