package menu

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"torrentcast/internal/app"
	"torrentcast/internal/domain/ports"
	"torrentcast/internal/metrics"
)

const passwordLength = 16

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AuthConfig tunes the gate in front of a menu.
type AuthConfig struct {
	// Policy controls when the single-slot password regenerates.
	Policy app.PasswordPolicy
	// PasswordAuth enables the password prompt for unknown chats. When
	// false, unknown chats are refused outright.
	PasswordAuth bool
	// AddOnSuccess records a chat as authenticated after it presents the
	// current password, so it is not asked again.
	AddOnSuccess bool
	// Users is the initial allow list.
	Users []ports.UserID
}

// AuthMenu wraps a Menu with an authentication gate: the main menu and every
// command behind it are only reachable for allow-listed chats, or for chats
// that present the current one-slot password.
type AuthMenu struct {
	*Menu

	mu            sync.Mutex
	authenticated map[ports.UserID]struct{}
	password      string

	policy       app.PasswordPolicy
	passwordAuth bool
	addOnSuccess bool
	logger       *slog.Logger
}

func NewAuth(m *Menu, cfg AuthConfig, logger *slog.Logger) *AuthMenu {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AuthMenu{
		Menu:          m,
		authenticated: make(map[ports.UserID]struct{}, len(cfg.Users)),
		policy:        cfg.Policy,
		passwordAuth:  cfg.PasswordAuth,
		addOnSuccess:  cfg.AddOnSuccess,
		logger:        logger,
	}
	for _, user := range cfg.Users {
		a.authenticated[user] = struct{}{}
	}
	a.regenerate()

	m.Handle("start", a.startState, NoCancel())
	m.Handle("authenticate", a.authenticateState, NoCancel())
	return a
}

// startState gates entry: known chats fall straight through to choice
// processing, unknown chats either get the password prompt or are refused.
func (a *AuthMenu) startState(ctx context.Context, c *Call) (string, error) {
	if a.policy == app.PasswordOnStart {
		a.regenerate()
	}

	if a.IsAuthenticated(c.User) {
		return a.Invoke(ctx, c, "process_main_menu_choice")
	}

	a.logger.Warn("unauthenticated chat", slog.Int64("userId", int64(c.User)))
	if !a.passwordAuth {
		metrics.BotAuthFailuresTotal.Inc()
		if err := c.Reply(ctx, "You are not authenticated."); err != nil {
			return "", err
		}
		return End, nil
	}

	if err := c.ReplyRemove(ctx, "Enter password:"); err != nil {
		return "", err
	}
	return "authenticate", nil
}

func (a *AuthMenu) authenticateState(ctx context.Context, c *Call) (string, error) {
	if c.Text != a.Password() {
		metrics.BotAuthFailuresTotal.Inc()
		a.logger.Warn("authentication failed", slog.Int64("userId", int64(c.User)))
		if a.policy == app.PasswordOnFailure {
			a.regenerate()
		}
		if err := c.Reply(ctx, "Wrong password."); err != nil {
			return "", err
		}
		return End, nil
	}

	if a.addOnSuccess {
		a.Authorize(c.User)
	}
	a.logger.Info("authenticated", slog.Int64("userId", int64(c.User)))
	return a.Invoke(ctx, c, "main_menu")
}

// regenerate replaces the single password slot and surfaces the new value in
// the log, which is the only channel it is ever published on.
func (a *AuthMenu) regenerate() {
	password := randomPassword(passwordLength)
	a.mu.Lock()
	a.password = password
	a.mu.Unlock()
	a.logger.Error("new password generated", slog.String("password", password))
}

func (a *AuthMenu) Password() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.password
}

func (a *AuthMenu) SetPassword(password string) {
	a.mu.Lock()
	a.password = password
	a.mu.Unlock()
	a.logger.Error("password replaced", slog.String("password", password))
}

// Regenerate rolls the password on demand (admin command).
func (a *AuthMenu) Regenerate() string {
	a.regenerate()
	return a.Password()
}

func (a *AuthMenu) Authorize(user ports.UserID) {
	a.mu.Lock()
	a.authenticated[user] = struct{}{}
	a.mu.Unlock()
}

func (a *AuthMenu) IsAuthenticated(user ports.UserID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.authenticated[user]
	return ok
}

func (a *AuthMenu) AuthenticatedUsers() []ports.UserID {
	a.mu.Lock()
	users := make([]ports.UserID, 0, len(a.authenticated))
	for user := range a.authenticated {
		users = append(users, user)
	}
	a.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

func randomPassword(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out)
}
