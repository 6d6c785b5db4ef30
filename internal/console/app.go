// Package console is the CLI application layer: it wires the transport,
// session and services together, dispatches subcommands, and renders
// results as tabwriter tables or JSON. The interactive shell lives here
// too, routing raw key input through the keymap dispatcher.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"moviesnow/internal/admin/bundles"
	"moviesnow/internal/admin/rbac"
	"moviesnow/internal/alerts"
	"moviesnow/internal/api"
	apimetrics "moviesnow/internal/api/metrics"
	"moviesnow/internal/auth"
	"moviesnow/internal/auth/tokenstore"
	"moviesnow/internal/keymap"
	"moviesnow/internal/mfa"
	"moviesnow/internal/notifications"
	"moviesnow/internal/platform/config"
	"moviesnow/internal/querycache"
	cachemetrics "moviesnow/internal/querycache/metrics"
	"moviesnow/internal/sessions"
	uploadmetrics "moviesnow/internal/uploads/metrics"
	"moviesnow/pkg/apierror"
)

// App holds the constructed services and the output streams.
type App struct {
	cfg    config.Client
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	logger *slog.Logger
	json   bool

	client        *api.Client
	session       *auth.Session
	cache         *querycache.Cache
	uploadMetrics *uploadmetrics.Metrics

	auth          *auth.Service
	sessions      *sessions.Service
	mfa           *mfa.Service
	notifications *notifications.Service
	alerts        *alerts.Service
	bundles       *bundles.Service
	rbac          *rbac.Service
	keys          *keymap.Dispatcher
}

// AppOption configures an App.
type AppOption func(*App)

// WithOutput redirects stdout/stderr, for tests.
func WithOutput(out, errOut io.Writer) AppOption {
	return func(a *App) {
		if out != nil {
			a.out = out
		}
		if errOut != nil {
			a.errOut = errOut
		}
	}
}

// WithInput sets the input stream prompts read from.
func WithInput(in io.Reader) AppOption {
	return func(a *App) {
		if in != nil {
			a.in = in
		}
	}
}

// WithAppLogger sets the structured logger.
func WithAppLogger(l *slog.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithJSONOutput switches every command to machine-readable output.
func WithJSONOutput(enabled bool) AppOption {
	return func(a *App) { a.json = enabled }
}

// NewApp builds the full service graph from the client configuration.
func NewApp(cfg config.Client, opts ...AppOption) (*App, error) {
	a := &App{
		cfg:    cfg,
		out:    os.Stdout,
		errOut: os.Stderr,
		in:     os.Stdin,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	// One process-local registry: nothing scrapes a CLI, but the
	// collectors stay cheap and debug tooling can dump them. Collectors
	// register once here; commands reuse them across invocations.
	registry := prometheus.NewRegistry()
	a.uploadMetrics = uploadmetrics.New(registry)

	a.client = api.NewClient(cfg.BaseURL,
		api.WithLogger(a.logger),
		api.WithMetrics(apimetrics.New(registry)),
		api.WithRetryPolicy(api.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		}),
	)

	store := tokenstore.New(cfg.CredentialsPath)
	session, err := auth.NewSession(a.client, store, auth.WithSessionLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.session = session
	a.client.SetTokenSource(session)

	a.cache = querycache.New(querycache.WithMetrics(cachemetrics.New(registry)))
	a.auth = auth.NewService(a.client, session, a.cache, auth.WithLogger(a.logger))
	a.sessions = sessions.NewService(a.client, a.cache, sessions.WithLogger(a.logger))
	a.mfa = mfa.NewService(a.client, a.cache, mfa.WithLogger(a.logger))
	a.notifications = notifications.NewService(a.client, a.cache, notifications.WithLogger(a.logger))
	a.alerts = alerts.NewService(a.client, a.cache, alerts.WithLogger(a.logger))
	a.bundles = bundles.NewService(a.client, a.cache, bundles.WithLogger(a.logger))
	a.rbac = rbac.NewService(a.client, a.cache, rbac.WithLogger(a.logger))
	a.keys = keymap.New()
	return a, nil
}

// Run dispatches one CLI invocation. The first argument selects the
// command; the rest are its flags and positionals.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return apierror.New(apierror.CodeInvalidInput, "a command is required")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.cmdLogin(ctx, rest)
	case "logout":
		return a.cmdLogout(ctx)
	case "whoami":
		return a.cmdWhoAmI()
	case "activity":
		return a.cmdActivity(ctx)
	case "sessions":
		return a.cmdSessions(ctx, rest)
	case "recovery-codes":
		return a.cmdRecoveryCodes(ctx, rest)
	case "notifications":
		return a.cmdNotifications(ctx, rest)
	case "alerts":
		return a.cmdAlerts(ctx, rest)
	case "bundles":
		return a.cmdBundles(ctx, rest)
	case "roles":
		return a.cmdRoles(ctx, rest)
	case "permissions":
		return a.cmdPermissions(ctx)
	case "keys":
		return a.cmdKeys()
	case "console":
		return a.cmdConsole(ctx)
	case "help", "-h", "--help":
		a.usage()
		return nil
	default:
		a.usage()
		return apierror.New(apierror.CodeInvalidInput, fmt.Sprintf("unknown command %q", cmd))
	}
}

func (a *App) usage() {
	lines := []string{
		"usage: moviesnow <command> [flags]",
		"",
		"  login             authenticate and store credentials",
		"  logout            revoke the session and clear credentials",
		"  whoami            show the logged-in account",
		"  activity          show the account security activity feed",
		"  sessions          list | revoke <jti> | revoke-others",
		"  recovery-codes    show | generate",
		"  notifications     list | read <id> | read-all | pin <id>",
		"  alerts            show | set <category> [--email] [--push] [--in-app]",
		"  bundles           list | create | delete <id> | upload <path>",
		"  roles             list | create | delete <id>",
		"  permissions       list the permission catalog",
		"  keys              print the keyboard bindings",
		"  console           interactive shell",
	}
	fmt.Fprintln(a.errOut, strings.Join(lines, "\n"))
}
