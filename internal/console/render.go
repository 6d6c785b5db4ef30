package console

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"moviesnow/internal/admin/bundles"
	"moviesnow/internal/admin/rbac"
	"moviesnow/internal/alerts"
	"moviesnow/internal/auth"
	"moviesnow/internal/keymap"
	"moviesnow/internal/mfa"
	"moviesnow/internal/notifications"
	"moviesnow/internal/sessions"
	"moviesnow/internal/theme"
)

func (a *App) renderJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (a *App) renderWhoAmI(claims *auth.Claims) {
	w := a.table()
	fmt.Fprintf(w, "Email\t%s\n", claims.Email)
	fmt.Fprintf(w, "Subject\t%s\n", claims.Subject)
	fmt.Fprintf(w, "Roles\t%s\n", strings.Join(claims.Roles, ", "))
	fmt.Fprintf(w, "Session\t%s\n", claims.SessionJTI)
	fmt.Fprintf(w, "Expires\t%s\n", formatTime(claims.ExpiresAt))
	w.Flush()
}

func (a *App) renderActivity(events []auth.ActivityEvent) {
	w := a.table()
	fmt.Fprintln(w, "WHEN\tEVENT\tIP\tOK")
	for _, ev := range events {
		ok := theme.Swatch(theme.Success, "ok")
		if !ev.Success {
			ok = theme.Swatch(theme.Danger, "failed")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", formatTime(ev.At), ev.Kind, ev.IP, ok)
	}
	w.Flush()
}

func (a *App) renderSessions(list []sessions.Session) {
	w := a.table()
	fmt.Fprintln(w, "JTI\tDEVICE\tIP\tLAST SEEN\tCURRENT")
	for _, s := range list {
		current := ""
		if s.Current {
			current = theme.Swatch(theme.Accent, "current")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.JTI, s.Device, s.IP, formatTime(s.LastSeenAt), current)
	}
	w.Flush()
}

func (a *App) renderRecoveryCodes(codes *mfa.RecoveryCodes) {
	if codes.Masked {
		fmt.Fprintln(a.out, "The server returned a redacted code set; regenerate to see fresh codes.")
	}
	for _, code := range codes.Codes {
		fmt.Fprintf(a.out, "  %s\n", code)
	}
	fmt.Fprintf(a.out, "%d usable code(s).\n", codes.Count())
}

func (a *App) renderNotifications(items []notifications.Notification) {
	w := a.table()
	fmt.Fprintln(w, "\tID\tWHEN\tPRIORITY\tTITLE")
	for _, n := range items {
		marker := " "
		if n.Pinned {
			marker = theme.Swatch(theme.Accent, "*")
		} else if !n.Read {
			marker = theme.Swatch(theme.Warning, "+")
		}
		priority := string(n.Priority)
		if n.Priority == notifications.PriorityUrgent {
			priority = theme.Swatch(theme.Danger, priority)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			marker, n.ID, formatTime(n.CreatedAt), priority, n.Title)
	}
	w.Flush()
}

func (a *App) renderSubscriptions(subs []alerts.Subscription) {
	w := a.table()
	fmt.Fprintln(w, "CATEGORY\tEMAIL\tPUSH\tIN-APP")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.Category, yesNo(s.Email), yesNo(s.Push), yesNo(s.InApp))
	}
	w.Flush()
}

func (a *App) renderBundles(items []bundles.Bundle) {
	w := a.table()
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tQUALITY\tSIZE\tSTATUS\tPREMIUM")
	for _, b := range items {
		status := string(b.Status)
		switch b.Status {
		case bundles.StatusReady:
			status = theme.Swatch(theme.Success, status)
		case bundles.StatusFailed:
			status = theme.Swatch(theme.Danger, status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Title, b.Type, b.Quality, formatBytes(b.SizeBytes), status, yesNo(b.Premium))
	}
	w.Flush()
}

func (a *App) renderRoles(roles []rbac.Role) {
	w := a.table()
	fmt.Fprintln(w, "ID\tROLE\tPERMS\tSYSTEM")
	for _, r := range roles {
		name := fmt.Sprintf("%s %s", r.Icon.Glyph(), theme.Swatch(r.Color, r.Name))
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, name, len(r.Permissions), yesNo(r.System))
	}
	w.Flush()
}

func (a *App) renderPermissions(grouped map[string][]rbac.Permission) {
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		fmt.Fprintln(a.out, theme.Emphasize(theme.TextHeading, category))
		for _, p := range grouped[category] {
			fmt.Fprintf(a.out, "  %s\n", p.Key())
		}
	}
}

func (a *App) renderBindings(bindings []keymap.Binding) {
	w := a.table()
	fmt.Fprintln(w, "KEYS\tACTION")
	for _, b := range bindings {
		keys := b.Key
		if b.Prefix != "" {
			keys = b.Prefix + " " + b.Key
		}
		if b.Ctrl {
			keys = "ctrl+" + keys
		}
		target := b.Action.Target
		if target == "" {
			target = b.Action.Command
		}
		fmt.Fprintf(w, "%s\t%s\n", keys, target)
	}
	w.Flush()
}
