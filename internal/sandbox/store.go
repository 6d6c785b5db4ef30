package sandbox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	sessiondev "moviesnow/internal/sessions"
)

// user is one sandbox account.
type user struct {
	ID            string
	Email         string
	PasswordHash  []byte
	TOTPSecret    string
	Roles         []string
	RecoveryCodes []recoveryCode
}

type recoveryCode struct {
	Code string
	Used bool
}

// session is one issued login session.
type session struct {
	JTI        string
	UserID     string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	IP         string
	UserAgent  string
	Device     string
	Location   string
	Revoked    bool
}

type notification struct {
	ID        string
	UserID    string
	Type      string
	Priority  string
	Title     string
	Body      string
	Read      bool
	Pinned    bool
	ActionURL string
	CreatedAt time.Time
	ReadAt    time.Time
}

type subscription struct {
	Category string
	Email    bool
	Push     bool
	InApp    bool
}

type bundle struct {
	ID        string
	Title     string
	Type      string
	Quality   string
	Format    string
	SizeBytes int64
	Premium   bool
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type role struct {
	ID          string
	Name        string
	Color       string
	Icon        string
	System      bool
	Permissions []permission
}

type permission struct {
	Resource string
	Action   string
	Category string
}

type activityEvent struct {
	ID        string
	UserID    string
	Kind      string
	IP        string
	UserAgent string
	Location  string
	Success   bool
	At        time.Time
}

// store is the sandbox's in-memory state. All methods take the lock; the
// handlers never touch the maps directly.
type store struct {
	mu sync.RWMutex

	users         map[string]*user // by ID
	usersByEmail  map[string]string
	sessions      map[string]*session // by JTI
	notifications []*notification
	subscriptions map[string]map[string]*subscription // userID -> category
	bundles       map[string]*bundle
	roles         map[string]*role
	permissions   []permission
	activity      []*activityEvent

	now func() time.Time
}

func newStore(now func() time.Time) *store {
	return &store{
		users:         make(map[string]*user),
		usersByEmail:  make(map[string]string),
		sessions:      make(map[string]*session),
		subscriptions: make(map[string]map[string]*subscription),
		bundles:       make(map[string]*bundle),
		roles:         make(map[string]*role),
		now:           now,
	}
}

// seed loads the demo dataset: two accounts (one MFA-enrolled admin, one
// plain member), a handful of notifications and bundles, and the
// built-in role set. Passwords hash at min cost; the sandbox guards
// nothing real.
func (st *store) seed() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()

	admin := &user{
		ID:         uuid.New().String(),
		Email:      "admin@moviesnow.dev",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
		Roles:      []string{"admin", "member"},
	}
	admin.PasswordHash, _ = bcrypt.GenerateFromPassword([]byte("admin-sandbox"), bcrypt.MinCost)
	admin.RecoveryCodes = newRecoveryCodes(10)

	member := &user{
		ID:    uuid.New().String(),
		Email: "casey@moviesnow.dev",
		Roles: []string{"member"},
	}
	member.PasswordHash, _ = bcrypt.GenerateFromPassword([]byte("casey-sandbox"), bcrypt.MinCost)
	member.RecoveryCodes = newRecoveryCodes(10)

	for _, u := range []*user{admin, member} {
		st.users[u.ID] = u
		st.usersByEmail[strings.ToLower(u.Email)] = u.ID
	}

	st.notifications = []*notification{
		{ID: uuid.New().String(), UserID: admin.ID, Type: "security", Priority: "urgent",
			Title: "New login from Berlin", Body: "A new device signed in to your account.",
			ActionURL: "/settings/sessions", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: uuid.New().String(), UserID: admin.ID, Type: "bundle_ready", Priority: "medium",
			Title: "Bundle ready: Heat (2160p)", Body: "Your download package finished processing.",
			CreatedAt: now.Add(-26 * time.Hour)},
		{ID: uuid.New().String(), UserID: admin.ID, Type: "billing", Priority: "low",
			Title: "Invoice available", Read: true, ReadAt: now.Add(-40 * time.Hour),
			CreatedAt: now.Add(-72 * time.Hour)},
		{ID: uuid.New().String(), UserID: member.ID, Type: "new_content", Priority: "medium",
			Title: "Season 2 released", CreatedAt: now.Add(-3 * time.Hour)},
	}

	for _, u := range []*user{admin, member} {
		prefs := make(map[string]*subscription)
		for _, category := range []string{"new_content", "continue_watching", "bundle_ready", "account", "security", "billing", "system", "promotion"} {
			prefs[category] = &subscription{Category: category, Email: category == "security" || category == "billing", InApp: true}
		}
		st.subscriptions[u.ID] = prefs
	}

	seedBundles := []*bundle{
		{Title: "Heat", Type: "movie", Quality: "2160p", Format: "mkv", SizeBytes: 79_456_123_904, Premium: true, Status: "ready"},
		{Title: "Heat", Type: "movie", Quality: "1080p", Format: "mp4", SizeBytes: 8_123_456_789, Status: "ready"},
		{Title: "Night Signal S01", Type: "season", Quality: "1080p", Format: "mkv", SizeBytes: 42_001_002_003, Status: "processing"},
		{Title: "Night Signal S01E01", Type: "episode", Quality: "720p", Format: "webm", SizeBytes: 1_204_500_000, Status: "ready"},
		{Title: "Harbor Lights (Complete)", Type: "series", Quality: "1080p", Format: "mkv", SizeBytes: 190_345_678_901, Premium: true, Status: "pending"},
	}
	for i, b := range seedBundles {
		b.ID = uuid.New().String()
		b.CreatedAt = now.Add(-time.Duration(i*7) * 24 * time.Hour)
		b.UpdatedAt = b.CreatedAt
		st.bundles[b.ID] = b
	}

	st.permissions = []permission{
		{Resource: "bundles", Action: "read", Category: "content"},
		{Resource: "bundles", Action: "write", Category: "content"},
		{Resource: "bundles", Action: "delete", Category: "content"},
		{Resource: "uploads", Action: "write", Category: "content"},
		{Resource: "roles", Action: "read", Category: "administration"},
		{Resource: "roles", Action: "write", Category: "administration"},
		{Resource: "users", Action: "read", Category: "administration"},
		{Resource: "users", Action: "write", Category: "administration"},
		{Resource: "sessions", Action: "revoke", Category: "security"},
		{Resource: "metrics", Action: "read", Category: "operations"},
	}

	ownerPerms := append([]permission{}, st.permissions...)
	st.addRoleLocked(&role{Name: "Owner", Color: "#8b5cf6", Icon: "crown", System: true, Permissions: ownerPerms})
	st.addRoleLocked(&role{Name: "Moderator", Color: "#3b82f6", Icon: "shield", System: true, Permissions: []permission{
		{Resource: "bundles", Action: "read", Category: "content"},
		{Resource: "sessions", Action: "revoke", Category: "security"},
	}})
	st.addRoleLocked(&role{Name: "Curator", Color: "#22c55e", Icon: "film", Permissions: []permission{
		{Resource: "bundles", Action: "read", Category: "content"},
		{Resource: "bundles", Action: "write", Category: "content"},
		{Resource: "uploads", Action: "write", Category: "content"},
	}})
}

func (st *store) addRoleLocked(r *role) {
	r.ID = uuid.New().String()
	st.roles[r.ID] = r
}

// newRecoveryCodes mints n codes in the xxxx-xxxx hex format.
func newRecoveryCodes(n int) []recoveryCode {
	out := make([]recoveryCode, 0, n)
	for range n {
		var buf [4]byte
		_, _ = rand.Read(buf[:])
		s := hex.EncodeToString(buf[:])
		out = append(out, recoveryCode{Code: fmt.Sprintf("%s-%s", s[:4], s[4:])})
	}
	return out
}

// userByEmail resolves an account by email, case-insensitively.
func (st *store) userByEmail(email string) (*user, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, false
	}
	return st.users[id], true
}

func (st *store) userByID(id string) (*user, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.users[id]
	return u, ok
}

// createSession records a fresh login session.
func (st *store) createSession(userID, ip, userAgent string, ttl time.Duration) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	sess := &session{
		JTI:        uuid.New().String(),
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
		IP:         ip,
		UserAgent:  userAgent,
		Device:     sessiondev.DeviceName(userAgent),
	}
	st.sessions[sess.JTI] = sess
	return sess
}

// touchSession bumps last-seen; expired or revoked sessions report false.
func (st *store) touchSession(jti string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[jti]
	if !ok || sess.Revoked || st.now().After(sess.ExpiresAt) {
		return false
	}
	sess.LastSeenAt = st.now()
	return true
}

// sessionsOf lists a user's live sessions.
func (st *store) sessionsOf(userID string) []*session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	now := st.now()
	out := make([]*session, 0, 4)
	for _, sess := range st.sessions {
		if sess.UserID == userID && !sess.Revoked && now.Before(sess.ExpiresAt) {
			copied := *sess
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// revokeSession marks one session revoked; it reports whether the
// session existed, belonged to the user, and was live.
func (st *store) revokeSession(userID, jti string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[jti]
	if !ok || sess.UserID != userID || sess.Revoked {
		return false
	}
	sess.Revoked = true
	return true
}

// revokeOtherSessions revokes every live session of the user except
// keep, returning how many went.
func (st *store) revokeOtherSessions(userID, keep string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	revoked := 0
	for _, sess := range st.sessions {
		if sess.UserID == userID && sess.JTI != keep && !sess.Revoked {
			sess.Revoked = true
			revoked++
		}
	}
	return revoked
}

// recordActivity appends one auth event to the feed.
func (st *store) recordActivity(userID, kind, ip, userAgent string, success bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activity = append(st.activity, &activityEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		At:        st.now(),
	})
}

// activityOf lists a user's auth events, newest first.
func (st *store) activityOf(userID string) []*activityEvent {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*activityEvent, 0, len(st.activity))
	for _, ev := range st.activity {
		if ev.UserID == userID {
			copied := *ev
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}

// regenerateRecoveryCodes replaces the user's code set.
func (st *store) regenerateRecoveryCodes(userID string) []recoveryCode {
	st.mu.Lock()
	defer st.mu.Unlock()
	u, ok := st.users[userID]
	if !ok {
		return nil
	}
	u.RecoveryCodes = newRecoveryCodes(10)
	return append([]recoveryCode{}, u.RecoveryCodes...)
}

// consumeRecoveryCode burns one unused code, reporting success.
func (st *store) consumeRecoveryCode(userID, code string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	u, ok := st.users[userID]
	if !ok {
		return false
	}
	for i := range u.RecoveryCodes {
		if u.RecoveryCodes[i].Code == code && !u.RecoveryCodes[i].Used {
			u.RecoveryCodes[i].Used = true
			return true
		}
	}
	return false
}

// recoveryCodesOf returns a copy of the user's code set.
func (st *store) recoveryCodesOf(userID string) []recoveryCode {
	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.users[userID]
	if !ok {
		return nil
	}
	return append([]recoveryCode{}, u.RecoveryCodes...)
}

// notificationsOf lists a user's notifications, newest first.
func (st *store) notificationsOf(userID string) []*notification {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*notification, 0, len(st.notifications))
	for _, n := range st.notifications {
		if n.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// updateNotification applies fn to the user's notification with the
// given ID, reporting whether it existed.
func (st *store) updateNotification(userID, id string, fn func(*notification)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, n := range st.notifications {
		if n.ID == id && n.UserID == userID {
			fn(n)
			return true
		}
	}
	return false
}

// markAllNotificationsRead flips every unread notification of the user.
func (st *store) markAllNotificationsRead(userID string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	changed := 0
	now := st.now()
	for _, n := range st.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			n.ReadAt = now
			changed++
		}
	}
	return changed
}

// subscriptionsOf returns a copy of the user's delivery preferences.
func (st *store) subscriptionsOf(userID string) []subscription {
	st.mu.RLock()
	defer st.mu.RUnlock()
	prefs := st.subscriptions[userID]
	out := make([]subscription, 0, len(prefs))
	for _, sub := range prefs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// replaceSubscriptions overwrites the categories present in subs,
// leaving the others untouched.
func (st *store) replaceSubscriptions(userID string, subs []subscription) {
	st.mu.Lock()
	defer st.mu.Unlock()
	prefs, ok := st.subscriptions[userID]
	if !ok {
		prefs = make(map[string]*subscription)
		st.subscriptions[userID] = prefs
	}
	for _, sub := range subs {
		copied := sub
		prefs[sub.Category] = &copied
	}
}

// listBundles returns every bundle, newest first.
func (st *store) listBundles() []*bundle {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*bundle, 0, len(st.bundles))
	for _, b := range st.bundles {
		copied := *b
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (st *store) createBundle(b *bundle) *bundle {
	st.mu.Lock()
	defer st.mu.Unlock()
	b.ID = uuid.New().String()
	b.CreatedAt = st.now()
	b.UpdatedAt = b.CreatedAt
	if b.Status == "" {
		b.Status = "pending"
	}
	st.bundles[b.ID] = b
	copied := *b
	return &copied
}

// updateBundle applies fn to the bundle, reporting whether it existed.
func (st *store) updateBundle(id string, fn func(*bundle)) (*bundle, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.bundles[id]
	if !ok {
		return nil, false
	}
	fn(b)
	b.UpdatedAt = st.now()
	copied := *b
	return &copied, true
}

func (st *store) deleteBundle(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.bundles[id]; !ok {
		return false
	}
	delete(st.bundles, id)
	return true
}

// listRoles returns every role, system roles first, then by name.
func (st *store) listRoles() []*role {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*role, 0, len(st.roles))
	for _, r := range st.roles {
		copied := *r
		copied.Permissions = append([]permission{}, r.Permissions...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].System != out[j].System {
			return out[i].System
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (st *store) roleByID(id string) (*role, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.roles[id]
	if !ok {
		return nil, false
	}
	copied := *r
	copied.Permissions = append([]permission{}, r.Permissions...)
	return &copied, true
}

func (st *store) createRole(r *role) *role {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.addRoleLocked(r)
	copied := *r
	return &copied
}

// updateRole applies fn to the role. System roles refuse.
func (st *store) updateRole(id string, fn func(*role)) (*role, bool, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.roles[id]
	if !ok {
		return nil, false, false
	}
	if r.System {
		return nil, true, false
	}
	fn(r)
	copied := *r
	return &copied, true, true
}

// deleteRole removes a role. System roles refuse.
func (st *store) deleteRole(id string) (found, deleted bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.roles[id]
	if !ok {
		return false, false
	}
	if r.System {
		return true, false
	}
	delete(st.roles, id)
	return true, true
}

// assignRole attaches a role name to the user's role list.
func (st *store) assignRole(userID, roleID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	u, okUser := st.users[userID]
	r, okRole := st.roles[roleID]
	if !okUser || !okRole {
		return false
	}
	name := strings.ToLower(r.Name)
	for _, existing := range u.Roles {
		if existing == name {
			return true
		}
	}
	u.Roles = append(u.Roles, name)
	return true
}

// permissionCatalog returns the full permission list.
func (st *store) permissionCatalog() []permission {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]permission{}, st.permissions...)
}
