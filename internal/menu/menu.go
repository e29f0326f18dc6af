// Package menu implements the conversational state-machine engine: named
// states with callbacks, per-menu namespacing, and the prompt/receive/dispatch
// loop shared by every composed menu.
package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"torrentcast/internal/domain/ports"
	"torrentcast/internal/session"
)

// End is the terminal return value: the conversation is over and the next
// message starts again from the entry state.
const End = "\x00end"

// HandlerFunc handles one incoming message for one state. The returned string
// is the next state: a bare name (auto-prefixed with the owning menu's
// namespace), End, or "" to stay in the current state.
type HandlerFunc func(ctx context.Context, c *Call) (next string, err error)

// Call carries one inbound message through a handler.
type Call struct {
	User   ports.UserID
	Text   string
	menu   *Menu
	sender ports.Sender
}

// Data returns the caller's scratch record in the owning menu's store.
func (c *Call) Data() *session.Record {
	return c.menu.store.Get(c.User)
}

func (c *Call) Reply(ctx context.Context, text string) error {
	return c.sender.Send(ctx, c.User, ports.Reply{Text: text})
}

func (c *Call) ReplyKeyboard(ctx context.Context, text string, keyboard [][]string) error {
	return c.sender.Send(ctx, c.User, ports.Reply{Text: text, Keyboard: keyboard})
}

func (c *Call) ReplyRemove(ctx context.Context, text string) error {
	return c.sender.Send(ctx, c.User, ports.Reply{Text: text, RemoveKeyboard: true})
}

// MultiReply sends "label[i] = value" lines, one message per value, matching
// the listing style of the original command handlers.
func (c *Call) MultiReply(ctx context.Context, label string, values []string) error {
	if len(values) == 0 {
		return c.Reply(ctx, label+" = done")
	}
	for i, v := range values {
		if err := c.Reply(ctx, fmt.Sprintf("%s[%d] = %s", label, i, v)); err != nil {
			return err
		}
	}
	return nil
}

// Invoke runs another state of the owning menu immediately, most often
// "main_menu" to re-serve the keyboard after a mid-flow failure.
func (c *Call) Invoke(ctx context.Context, state string) (string, error) {
	return c.menu.Invoke(ctx, c, state)
}

func (c *Call) logAction(logger *slog.Logger, text string) {
	logger.Info(text, slog.Int64("userId", int64(c.User)))
}

// Menu is one cohesive sub-dialog: a keyboard layout, a label-to-state map and
// a state-to-handler map, namespaced by a unique prefix so independently
// authored menus compose into one conversation without state collisions.
type Menu struct {
	name     string
	prefix   string
	layout   [][]string
	labels   map[string]string
	handlers map[string]HandlerFunc
	store    *session.Store
	logger   *slog.Logger
}

type Config struct {
	Name   string
	Layout [][]string
	Logger *slog.Logger

	// Per-user store tuning; zero values use the package defaults.
	UserDataTTL     time.Duration
	UserDataMaxSize int
}

func New(cfg Config) *Menu {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Menu{
		name:     cfg.Name,
		prefix:   "Menu_" + cfg.Name + "_",
		layout:   cfg.Layout,
		labels:   make(map[string]string),
		handlers: make(map[string]HandlerFunc),
		store:    session.NewStore(cfg.UserDataTTL, cfg.UserDataMaxSize),
		logger:   logger,
	}

	for _, row := range cfg.Layout {
		for _, command := range row {
			m.RegisterLabel(CommandLabel(command), command)
		}
	}

	m.Handle("start", m.startState, NoCancel())
	m.Handle("main_menu", m.mainMenuState, NoCancel())
	m.Handle("process_main_menu_choice", m.processChoiceState, NoCancel())
	m.Handle("cancel", m.cancelState, NoCancel())

	return m
}

func (m *Menu) Name() string { return m.name }

// Store exposes the menu's per-user storage (shared with HTTP-side callers).
func (m *Menu) Store() *session.Store { return m.store }

// Prefix namespaces a bare state name with this menu's unique prefix.
// Idempotent: an already-prefixed name passes through unchanged.
func (m *Menu) Prefix(name string) string {
	if strings.HasPrefix(name, m.prefix) {
		return name
	}
	return m.prefix + name
}

// RegisterLabel maps a keyboard label to a bare state name.
func (m *Menu) RegisterLabel(label, state string) {
	m.labels[label] = state
}

type handleConfig struct {
	menuOnExit bool
	noPrefix   bool
	noCancel   bool
}

type HandleOption func(*handleConfig)

// MenuOnExit re-serves the main menu after the handler completes, freeing
// one-shot commands from returning to the menu by hand.
func MenuOnExit() HandleOption {
	return func(cfg *handleConfig) { cfg.menuOnExit = true }
}

// NoPrefix exempts the handler's string results from automatic prefixing, for
// handlers that hand the conversation to another menu.
func NoPrefix() HandleOption {
	return func(cfg *handleConfig) { cfg.noPrefix = true }
}

// NoCancel suppresses the uniform cancel short-circuit; used by internal
// states like authentication where "cancel" must not reach the main menu.
func NoCancel() HandleOption {
	return func(cfg *handleConfig) { cfg.noCancel = true }
}

// Handle registers (or overrides) the handler for a bare state name. Every
// handler is wrapped so that a trimmed, case-insensitive "cancel" returns to
// the main menu without invoking the handler, and plain state-name results
// are prefixed with the menu's namespace.
func (m *Menu) Handle(state string, fn HandlerFunc, opts ...HandleOption) {
	var cfg handleConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	m.handlers[state] = m.wrap(fn, cfg)
}

func (m *Menu) wrap(fn HandlerFunc, cfg handleConfig) HandlerFunc {
	wrapped := fn

	if cfg.menuOnExit {
		inner := wrapped
		wrapped = func(ctx context.Context, c *Call) (string, error) {
			if _, err := inner(ctx, c); err != nil {
				return "", err
			}
			return m.mainMenuState(ctx, c)
		}
	}

	if !cfg.noCancel {
		inner := wrapped
		wrapped = func(ctx context.Context, c *Call) (string, error) {
			if IsCancel(c.Text) {
				c.logAction(m.logger, "canceled")
				return m.mainMenuState(ctx, c)
			}
			return inner(ctx, c)
		}
	}

	if !cfg.noPrefix {
		inner := wrapped
		wrapped = func(ctx context.Context, c *Call) (string, error) {
			next, err := inner(ctx, c)
			if err != nil || next == "" || next == End {
				return next, err
			}
			return m.Prefix(next), nil
		}
	}

	return wrapped
}

// Invoke calls the named state's handler immediately (not on the next
// message), rebinding the call to this menu.
func (m *Menu) Invoke(ctx context.Context, c *Call, state string) (string, error) {
	handler, ok := m.handlers[state]
	if !ok {
		return m.Prefix("main_menu"), nil
	}
	bound := *c
	bound.menu = m
	return handler(ctx, &bound)
}

// Handlers returns the prefixed state map for mounting into a Router.
func (m *Menu) Handlers() map[string]HandlerFunc {
	out := make(map[string]HandlerFunc, len(m.handlers))
	for state, handler := range m.handlers {
		out[m.Prefix(state)] = handler
	}
	return out
}

// Markup renders the layout as keyboard rows of display labels.
func (m *Menu) Markup() [][]string {
	rows := make([][]string, 0, len(m.layout))
	for _, row := range m.layout {
		labels := make([]string, 0, len(row))
		for _, command := range row {
			labels = append(labels, CommandLabel(command))
		}
		rows = append(rows, labels)
	}
	return rows
}

// Built-in states.

func (m *Menu) startState(ctx context.Context, c *Call) (string, error) {
	return m.mainMenuState(ctx, c)
}

func (m *Menu) mainMenuState(ctx context.Context, c *Call) (string, error) {
	if err := c.ReplyKeyboard(ctx, "Enter command:", m.Markup()); err != nil {
		return "", err
	}
	return m.Prefix("process_main_menu_choice"), nil
}

// processChoiceState maps the received label back to a state and invokes its
// handler. Unknown labels and states without a handler re-serve the menu.
func (m *Menu) processChoiceState(ctx context.Context, c *Call) (string, error) {
	state, ok := m.labels[strings.TrimSpace(c.Text)]
	c.logAction(m.logger, fmt.Sprintf("chose %q -> %s", c.Text, state))
	if !ok {
		return m.mainMenuState(ctx, c)
	}

	handler, ok := m.handlers[state]
	if !ok {
		return m.mainMenuState(ctx, c)
	}
	return handler(ctx, c)
}

// cancelState acknowledges and returns to start rather than the main menu, so
// canceling before authentication never leaks the command keyboard.
func (m *Menu) cancelState(ctx context.Context, c *Call) (string, error) {
	if err := c.Reply(ctx, "Cancelled."); err != nil {
		return "", err
	}
	return m.Prefix("start"), nil
}

// IsCancel reports whether the text is the literal cancel request, ignoring
// case and surrounding whitespace.
func IsCancel(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "cancel")
}

// CommandLabel renders a snake_case command name as its keyboard label:
// "add_tv_show" becomes "Add Tv Show".
func CommandLabel(command string) string {
	parts := strings.Split(command, "_")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, strings.ToUpper(part[:1])+part[1:])
	}
	return strings.Join(out, " ")
}
