// Package keymap dispatches key events to actions: single-key bindings
// and two-key chords with a one-second arm window. The dispatcher is a
// small state machine (idle, awaiting the chord's second key) that
// returns actions and never performs I/O itself.
package keymap

import (
	"sync"
	"time"
)

// chordTimeout is how long a chord prefix stays armed. A second key
// arriving later is treated as a fresh press.
const chordTimeout = time.Second

// Event is one key press, with modifier flags.
type Event struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
}

// Context describes where focus is when the event arrives.
type Context struct {
	// InTextInput suppresses every binding except escape, so typing "g"
	// into a search box never navigates.
	InTextInput bool
}

// ActionKind distinguishes what a dispatched action asks the caller to do.
type ActionKind string

const (
	ActionNone     ActionKind = ""         // not handled
	ActionNavigate ActionKind = "navigate" // go to Target
	ActionCommand  ActionKind = "command"  // run the named command
	ActionBlur     ActionKind = "blur"     // leave the focused text input
)

// Action is the dispatcher's verdict for one event.
type Action struct {
	Kind    ActionKind
	Target  string // navigation path for ActionNavigate
	Command string // command name for ActionCommand
}

// handled reports whether the event produced an action.
func (a Action) handled() bool { return a.Kind != ActionNone }

// Binding maps one key (plus exact modifier flags) to an action. A
// binding with a Prefix is the second half of a chord: it fires only
// while that prefix is armed.
type Binding struct {
	Key    string
	Ctrl   bool
	Alt    bool
	Shift  bool
	Prefix string // chord prefix key, empty for single-key bindings
	Action Action
}

// matches reports whether the binding covers the event. Modifier flags
// must match exactly: "g" and "ctrl+g" are different bindings.
func (b Binding) matches(ev Event) bool {
	return b.Key == ev.Key && b.Ctrl == ev.Ctrl && b.Alt == ev.Alt && b.Shift == ev.Shift
}

// Dispatcher routes events. Safe for concurrent use; in practice one
// input loop feeds it.
type Dispatcher struct {
	mu       sync.Mutex
	bindings []Binding
	builtins []Binding
	prefixes map[string]struct{}

	pending   string
	pendingAt time.Time
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBindings adds caller-supplied bindings. They take precedence over
// the built-ins on conflicts.
func WithBindings(bindings ...Binding) Option {
	return func(d *Dispatcher) {
		d.bindings = append(d.bindings, bindings...)
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher carrying the built-in navigation bindings.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		builtins: builtinBindings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.prefixes = make(map[string]struct{})
	for _, b := range d.bindings {
		if b.Prefix != "" {
			d.prefixes[b.Prefix] = struct{}{}
		}
	}
	for _, b := range d.builtins {
		if b.Prefix != "" {
			d.prefixes[b.Prefix] = struct{}{}
		}
	}
	return d
}

// builtinBindings is the default navigation map: "g" chords for pages,
// "?" for the shortcut help overlay, "/" for search focus.
func builtinBindings() []Binding {
	chords := []struct {
		key    string
		target string
	}{
		{"h", "/home"},
		{"b", "/browse"},
		{"n", "/notifications"},
		{"s", "/settings"},
		{"a", "/admin"},
		{"w", "/watchlist"},
	}
	bindings := make([]Binding, 0, len(chords)+3)
	for _, c := range chords {
		bindings = append(bindings, Binding{
			Key:    c.key,
			Prefix: "g",
			Action: Action{Kind: ActionNavigate, Target: c.target},
		})
	}
	bindings = append(bindings,
		Binding{Key: "?", Shift: true, Action: Action{Kind: ActionCommand, Command: "help"}},
		Binding{Key: "?", Action: Action{Kind: ActionCommand, Command: "help"}},
		Binding{Key: "/", Action: Action{Kind: ActionCommand, Command: "focus-search"}},
	)
	return bindings
}

// Dispatch routes one event and returns the resulting action.
// ActionNone means the event was not handled and the caller should let
// it fall through.
func (d *Dispatcher) Dispatch(ev Event, ctx Context) Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Text inputs swallow everything except escape, which blurs.
	if ctx.InTextInput {
		d.pending = ""
		if ev.Key == "escape" && !ev.Ctrl && !ev.Alt {
			return Action{Kind: ActionBlur}
		}
		return Action{}
	}

	if ev.Key == "escape" && !ev.Ctrl && !ev.Alt && d.pending != "" {
		// Escape cancels an armed chord instead of closing anything.
		d.pending = ""
		return Action{}
	}

	// An armed, unexpired prefix resolves chord bindings first.
	if d.pending != "" {
		prefix := d.pending
		expired := d.now().Sub(d.pendingAt) > chordTimeout
		d.pending = ""
		if !expired {
			if action, ok := d.match(ev, prefix); ok {
				return action
			}
			// Unmatched second key falls through as a fresh press.
		}
	}

	if action, ok := d.match(ev, ""); ok {
		return action
	}

	// A bare prefix key arms the chord state.
	if _, ok := d.prefixes[ev.Key]; ok && !ev.Ctrl && !ev.Alt && !ev.Shift {
		d.pending = ev.Key
		d.pendingAt = d.now()
	}
	return Action{}
}

// match finds the first binding for the event under the given chord
// prefix; caller bindings win over built-ins.
func (d *Dispatcher) match(ev Event, prefix string) (Action, bool) {
	for _, b := range d.bindings {
		if b.Prefix == prefix && b.matches(ev) {
			return b.Action, true
		}
	}
	for _, b := range d.builtins {
		if b.Prefix == prefix && b.matches(ev) {
			return b.Action, true
		}
	}
	return Action{}, false
}

// Bindings returns every binding, caller-supplied first, for help
// output.
func (d *Dispatcher) Bindings() []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Binding, 0, len(d.bindings)+len(d.builtins))
	out = append(out, d.bindings...)
	out = append(out, d.builtins...)
	return out
}
