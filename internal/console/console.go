package console

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"moviesnow/internal/admin/bundles"
	"moviesnow/internal/api"
	"moviesnow/internal/keymap"
	"moviesnow/internal/notifications"
	"moviesnow/internal/theme"
	"moviesnow/pkg/apierror"
)

// cmdConsole runs the interactive shell: raw-mode key input routed
// through the keymap dispatcher, with views rendered by the same
// services the one-shot commands use.
func (a *App) cmdConsole(ctx context.Context) error {
	f, ok := a.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return apierror.New(apierror.CodeInvalidInput, "the console needs an interactive terminal")
	}
	fd := int(f.Fd())

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return apierror.Wrap(err, apierror.CodeInternal, "failed to enter raw mode")
	}
	defer term.Restore(fd, oldState)

	// Rendering happens in cooked mode so multi-line output keeps its
	// left margin; raw mode resumes for the next key read.
	render := func(fn func()) {
		term.Restore(fd, oldState)
		fn()
		term.MakeRaw(fd)
	}

	render(func() {
		fmt.Fprintln(a.out, theme.Emphasize(theme.TextTitle, "moviesnow console"))
		fmt.Fprintln(a.out, "g+h home, g+n notifications, g+s settings, g+a admin, / search, ? help, q quit")
	})

	var search strings.Builder
	inSearch := false
	buf := make([]byte, 64)

	for {
		n, err := f.Read(buf)
		if err != nil {
			return nil
		}

		for _, ev := range decodeInput(buf[:n]) {
			if ev.Ctrl && ev.Key == "c" {
				return nil
			}

			if inSearch {
				action := a.keys.Dispatch(ev, keymap.Context{InTextInput: true})
				switch {
				case action.Kind == keymap.ActionBlur:
					inSearch = false
					search.Reset()
					render(func() { fmt.Fprintln(a.out) })
				case ev.Key == "enter":
					query := search.String()
					inSearch = false
					search.Reset()
					render(func() { a.runSearch(ctx, query) })
				case ev.Key == "backspace":
					if search.Len() > 0 {
						s := search.String()
						search.Reset()
						search.WriteString(s[:len(s)-1])
					}
					fmt.Fprint(a.out, "\b \b")
				case len(ev.Key) == 1 && !ev.Ctrl && !ev.Alt:
					search.WriteString(ev.Key)
					fmt.Fprint(a.out, ev.Key)
				case ev.Key == "space":
					search.WriteString(" ")
					fmt.Fprint(a.out, " ")
				}
				continue
			}

			if ev.Key == "q" && !ev.Ctrl && !ev.Alt && !ev.Shift {
				return nil
			}

			action := a.keys.Dispatch(ev, keymap.Context{})
			switch action.Kind {
			case keymap.ActionNavigate:
				render(func() { a.renderView(ctx, action.Target) })
			case keymap.ActionCommand:
				switch action.Command {
				case "help":
					render(func() { a.renderBindings(a.keys.Bindings()) })
				case "focus-search":
					inSearch = true
					fmt.Fprint(a.out, "search> ")
				}
			}
		}
	}
}

// renderView draws one navigation target using the service layer.
func (a *App) renderView(ctx context.Context, target string) {
	fmt.Fprintln(a.out, theme.Emphasize(theme.TextHeading, target))
	switch target {
	case "/home":
		claims, err := a.auth.WhoAmI()
		if err != nil {
			a.printError(err)
			return
		}
		a.renderWhoAmI(claims)

	case "/notifications":
		listing, err := a.notifications.List(ctx, notifications.Filter{}, api.Page{})
		if err != nil {
			a.printError(err)
			return
		}
		a.renderNotifications(listing.Items)

	case "/settings":
		subs, err := a.alerts.Get(ctx)
		if err != nil {
			a.printError(err)
			return
		}
		a.renderSubscriptions(subs)
		list, err := a.sessions.List(ctx)
		if err != nil {
			a.printError(err)
			return
		}
		a.renderSessions(list)

	case "/admin":
		listing, err := a.bundles.List(ctx, bundles.Filter{}, api.Page{})
		if err != nil {
			a.printError(err)
			return
		}
		a.renderBundles(listing.Items)
		roles, err := a.rbac.ListRoles(ctx)
		if err != nil {
			a.printError(err)
			return
		}
		a.renderRoles(roles)

	default:
		// Catalog browsing lives in the full client; the toolkit console
		// has nothing to draw here yet.
		fmt.Fprintln(a.out, theme.Emphasize(theme.TextCaption, "nothing to show"))
	}
}

// runSearch filters the notification feed by the typed query.
func (a *App) runSearch(ctx context.Context, query string) {
	fmt.Fprintln(a.out)
	if strings.TrimSpace(query) == "" {
		return
	}
	listing, err := a.notifications.List(ctx, notifications.Filter{Search: query}, api.Page{})
	if err != nil {
		a.printError(err)
		return
	}
	a.renderNotifications(listing.Items)
}

func (a *App) printError(err error) {
	fmt.Fprintln(a.errOut, theme.Swatch(theme.Danger, err.Error()))
}
