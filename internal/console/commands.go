package console

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"moviesnow/internal/admin/bundles"
	"moviesnow/internal/admin/rbac"
	"moviesnow/internal/alerts"
	"moviesnow/internal/api"
	"moviesnow/internal/auth"
	"moviesnow/internal/notifications"
	"moviesnow/pkg/apierror"
)

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when omitted)")
	passcode := fs.String("passcode", "", "TOTP passcode for MFA accounts")
	recoveryCode := fs.String("recovery-code", "", "recovery code for MFA accounts")
	totpSecret := fs.String("totp-secret", "", "compute the passcode from an enrolled TOTP secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return apierror.New(apierror.CodeValidation, "--email is required")
	}
	if *password == "" {
		prompted, err := a.promptSecret("Password: ")
		if err != nil {
			return err
		}
		*password = prompted
	}

	var opts []auth.LoginOption
	switch {
	case *recoveryCode != "":
		opts = append(opts, auth.WithRecoveryCode(*recoveryCode))
	case *passcode != "":
		opts = append(opts, auth.WithPasscode(*passcode))
	case *totpSecret != "":
		opts = append(opts, auth.WithTOTPSecret(*totpSecret))
	}

	pair, err := a.auth.Login(ctx, *email, *password, opts...)
	if err != nil {
		if apierror.HasCode(err, apierror.CodeMFARequired) {
			code, promptErr := a.promptSecret("Passcode: ")
			if promptErr != nil {
				return promptErr
			}
			pair, err = a.auth.Login(ctx, *email, *password, auth.WithPasscode(code))
		}
		if err != nil {
			return err
		}
	}

	if a.json {
		return a.renderJSON(map[string]any{
			"email":       *email,
			"expires_at":  pair.ExpiresAt,
			"session_jti": pair.SessionJTI,
		})
	}
	fmt.Fprintf(a.out, "Logged in as %s (session %s)\n", *email, pair.SessionJTI)
	return nil
}

func (a *App) cmdLogout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	if a.json {
		return a.renderJSON(map[string]string{"status": "logged_out"})
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func (a *App) cmdWhoAmI() error {
	claims, err := a.auth.WhoAmI()
	if err != nil {
		return err
	}
	if a.json {
		return a.renderJSON(map[string]any{
			"subject":     claims.Subject,
			"email":       claims.Email,
			"roles":       claims.Roles,
			"session_jti": claims.SessionJTI,
			"expires_at":  claims.ExpiresAt,
		})
	}
	a.renderWhoAmI(claims)
	return nil
}

func (a *App) cmdActivity(ctx context.Context) error {
	events, _, err := a.auth.Activity(ctx, api.Page{})
	if err != nil {
		return err
	}
	if a.json {
		return a.renderJSON(events)
	}
	a.renderActivity(events)
	return nil
}

func (a *App) cmdSessions(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		list, err := a.sessions.List(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(list)
		}
		a.renderSessions(list)
		return nil

	case "revoke":
		if len(rest) == 0 {
			return apierror.New(apierror.CodeValidation, "usage: sessions revoke <jti>")
		}
		reauth, err := a.stepUp(ctx)
		if err != nil {
			return err
		}
		if err := a.sessions.Revoke(ctx, rest[0], reauth); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Session revoked.")
		return nil

	case "revoke-others":
		reauth, err := a.stepUp(ctx)
		if err != nil {
			return err
		}
		outcome, err := a.sessions.RevokeOthers(ctx, reauth)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(outcome)
		}
		fmt.Fprintf(a.out, "Revoked %d session(s).\n", outcome.RevokedCount)
		return nil

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: sessions list|revoke|revoke-others")
	}
}

func (a *App) cmdRecoveryCodes(ctx context.Context, args []string) error {
	sub, _ := subcommand(args, "show")
	switch sub {
	case "show":
		codes, err := a.mfa.Codes(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(codes)
		}
		a.renderRecoveryCodes(codes)
		return nil

	case "generate":
		reauth, err := a.stepUp(ctx)
		if err != nil {
			return err
		}
		codes, err := a.mfa.Generate(ctx, reauth)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(codes)
		}
		fmt.Fprintln(a.out, "New recovery codes (store them somewhere safe; the old set is void):")
		a.renderRecoveryCodes(codes)
		return nil

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: recovery-codes show|generate")
	}
}

func (a *App) cmdNotifications(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")

	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	unread := fs.Bool("unread", false, "unread only")
	typeFlag := fs.String("type", "", "filter by category")
	priority := fs.String("priority", "", "filter by priority")
	search := fs.String("search", "", "match title and body")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	filter := notifications.Filter{
		UnreadOnly: *unread,
		Search:     *search,
	}
	if *typeFlag != "" {
		filter.Type = notifications.ParseType(*typeFlag)
	}
	if *priority != "" {
		filter.Priority = notifications.ParsePriority(*priority)
	}

	switch sub {
	case "list":
		listing, err := a.notifications.List(ctx, filter, api.Page{})
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(listing.Items)
		}
		a.renderNotifications(listing.Items)
		return nil

	case "read":
		if fs.NArg() == 0 {
			return apierror.New(apierror.CodeValidation, "usage: notifications read <id>")
		}
		return a.notifications.MarkRead(ctx, filter, api.Page{}, fs.Arg(0))

	case "read-all":
		return a.notifications.MarkAllRead(ctx, filter, api.Page{})

	case "pin":
		if fs.NArg() == 0 {
			return apierror.New(apierror.CodeValidation, "usage: notifications pin <id>")
		}
		return a.notifications.Pin(ctx, filter, api.Page{}, fs.Arg(0))

	case "unpin":
		if fs.NArg() == 0 {
			return apierror.New(apierror.CodeValidation, "usage: notifications unpin <id>")
		}
		return a.notifications.Unpin(ctx, filter, api.Page{}, fs.Arg(0))

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: notifications list|read|read-all|pin|unpin")
	}
}

func (a *App) cmdAlerts(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "show")
	switch sub {
	case "show":
		subs, err := a.alerts.Get(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(subs)
		}
		a.renderSubscriptions(subs)
		return nil

	case "set":
		fs := flag.NewFlagSet("alerts set", flag.ContinueOnError)
		fs.SetOutput(a.errOut)
		email := fs.Bool("email", false, "deliver by email")
		push := fs.Bool("push", false, "deliver by push")
		inApp := fs.Bool("in-app", true, "deliver in-app")
		if len(rest) == 0 {
			return apierror.New(apierror.CodeValidation, "usage: alerts set <category> [--email] [--push] [--in-app]")
		}
		category := rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		return a.alerts.Update(ctx, []alerts.Subscription{{
			Category: notifications.ParseType(category),
			Email:    *email,
			Push:     *push,
			InApp:    *inApp,
		}})

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: alerts show|set")
	}
}

func (a *App) cmdBundles(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		fs := flag.NewFlagSet("bundles list", flag.ContinueOnError)
		fs.SetOutput(a.errOut)
		search := fs.String("search", "", "match titles")
		typeFlag := fs.String("type", "", "movie|episode|season|series")
		status := fs.String("status", "", "pending|processing|ready|failed")
		premium := fs.Bool("premium", false, "premium only")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		listing, err := a.bundles.List(ctx, bundles.Filter{
			Search:      *search,
			Type:        bundles.BundleType(*typeFlag),
			Status:      bundles.Status(*status),
			PremiumOnly: *premium,
		}, api.Page{})
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(listing.Items)
		}
		a.renderBundles(listing.Items)
		return nil

	case "create":
		fs := flag.NewFlagSet("bundles create", flag.ContinueOnError)
		fs.SetOutput(a.errOut)
		title := fs.String("title", "", "bundle title")
		typeFlag := fs.String("type", "movie", "movie|episode|season|series")
		quality := fs.String("quality", "1080p", "480p|720p|1080p|2160p")
		format := fs.String("format", "mkv", "mp4|mkv|webm")
		size := fs.Int64("size", 0, "size in bytes")
		premium := fs.Bool("premium", false, "premium flag")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		created, err := a.bundles.Create(ctx, bundles.CreateParams{
			Title:     *title,
			Type:      bundles.BundleType(*typeFlag),
			Quality:   bundles.Quality(*quality),
			Format:    bundles.Format(*format),
			SizeBytes: *size,
			Premium:   *premium,
		})
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(created)
		}
		fmt.Fprintf(a.out, "Created bundle %s (%s)\n", created.ID, created.Title)
		return nil

	case "delete":
		if len(rest) == 0 {
			return apierror.New(apierror.CodeValidation, "usage: bundles delete <id>")
		}
		reauth, err := a.stepUp(ctx)
		if err != nil {
			return err
		}
		if err := a.bundles.Delete(ctx, rest[0], reauth); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Bundle deleted.")
		return nil

	case "upload":
		return a.cmdUpload(ctx, rest)

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: bundles list|create|delete|upload")
	}
}

func (a *App) cmdRoles(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		roles, err := a.rbac.ListRoles(ctx)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(roles)
		}
		a.renderRoles(roles)
		return nil

	case "create":
		fs := flag.NewFlagSet("roles create", flag.ContinueOnError)
		fs.SetOutput(a.errOut)
		name := fs.String("name", "", "role name")
		color := fs.String("color", "", "hex color, defaults to the standard role blue")
		icon := fs.String("icon", "", "shield|crown|star|wrench|eye|film|upload|users")
		perms := fs.String("permissions", "", "comma-separated resource:action keys")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		params := rbac.CreateParams{Name: *name, Color: *color, Icon: *icon}
		if *perms != "" {
			params.Permissions = strings.Split(*perms, ",")
		}
		created, err := a.rbac.CreateRole(ctx, params)
		if err != nil {
			return err
		}
		if a.json {
			return a.renderJSON(created)
		}
		fmt.Fprintf(a.out, "Created role %s (%s)\n", created.ID, created.Name)
		return nil

	case "delete":
		if len(rest) == 0 {
			return apierror.New(apierror.CodeValidation, "usage: roles delete <id>")
		}
		reauth, err := a.stepUp(ctx)
		if err != nil {
			return err
		}
		if err := a.rbac.DeleteRole(ctx, rest[0], reauth); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Role deleted.")
		return nil

	case "assign":
		if len(rest) < 2 {
			return apierror.New(apierror.CodeValidation, "usage: roles assign <user-id> <role-id>")
		}
		return a.rbac.AssignRole(ctx, rest[0], rest[1])

	default:
		return apierror.New(apierror.CodeInvalidInput, "usage: roles list|create|delete|assign")
	}
}

func (a *App) cmdPermissions(ctx context.Context) error {
	perms, err := a.rbac.ListPermissions(ctx)
	if err != nil {
		return err
	}
	if a.json {
		return a.renderJSON(perms)
	}
	a.renderPermissions(rbac.GroupPermissions(perms))
	return nil
}

func (a *App) cmdKeys() error {
	bindings := a.keys.Bindings()
	if a.json {
		return a.renderJSON(bindings)
	}
	a.renderBindings(bindings)
	return nil
}

// stepUp prompts for the account password and exchanges it for a
// short-lived re-authentication token.
func (a *App) stepUp(ctx context.Context) (string, error) {
	password, err := a.promptSecret("Password (re-authentication): ")
	if err != nil {
		return "", err
	}
	token, err := a.auth.Reauth(ctx, password)
	if err != nil {
		return "", err
	}
	return token.Token, nil
}

// promptSecret reads a secret without echo when stdin is a terminal,
// falling back to a plain line read for piped input.
func (a *App) promptSecret(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", apierror.Wrap(err, apierror.CodeInternal, "failed to read password")
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", apierror.Wrap(err, apierror.CodeInternal, "failed to read password")
	}
	return strings.TrimSpace(line), nil
}

// subcommand splits the verb off an argument list, with a default when
// none is given.
func subcommand(args []string, def string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return def, args
	}
	return args[0], args[1:]
}
