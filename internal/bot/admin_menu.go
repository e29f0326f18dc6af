package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"torrentcast/internal/domain/ports"
	"torrentcast/internal/menu"
)

var adminLayout = [][]string{
	{"get_password", "set_password"},
	{"list_authenticated_users", "add_authenticated_user"},
	{"get_my_id", "free_space"},
	{"back_to_main"},
}

// buildAdminMenu gates the admin panel on the configured id list alone; no
// password prompt is offered to unknown chats.
func (b *Bot) buildAdminMenu() *menu.AuthMenu {
	cfg := b.deps.Config
	m := menu.New(menu.Config{
		Name:            "admin",
		Layout:          adminLayout,
		Logger:          b.deps.Logger,
		UserDataTTL:     cfg.UserDataTTL,
		UserDataMaxSize: cfg.UserDataMaxSize,
	})
	auth := menu.NewAuth(m, menu.AuthConfig{
		Policy:       cfg.PasswordPolicy,
		PasswordAuth: false,
		Users:        cfg.AdminUsers,
	}, b.deps.Logger)

	m.Handle("get_password", func(ctx context.Context, c *menu.Call) (string, error) {
		return "", c.Reply(ctx, b.Main.Password())
	}, menu.MenuOnExit())

	m.Handle("set_password", func(ctx context.Context, c *menu.Call) (string, error) {
		if err := c.ReplyRemove(ctx, "Enter new password:"); err != nil {
			return "", err
		}
		return "set_password_value", nil
	})
	m.Handle("set_password_value", func(ctx context.Context, c *menu.Call) (string, error) {
		b.Main.SetPassword(strings.TrimSpace(c.Text))
		if err := c.Reply(ctx, "Password set"); err != nil {
			return "", err
		}
		return "", nil
	}, menu.MenuOnExit())

	m.Handle("list_authenticated_users", func(ctx context.Context, c *menu.Call) (string, error) {
		return "", c.MultiReply(ctx, "Authenticated users", userLines(b.Main.AuthenticatedUsers()))
	}, menu.MenuOnExit())

	m.Handle("add_authenticated_user", func(ctx context.Context, c *menu.Call) (string, error) {
		if err := c.ReplyRemove(ctx, "Enter user id:"); err != nil {
			return "", err
		}
		return "add_authenticated_user_value", nil
	})
	m.Handle("add_authenticated_user_value", func(ctx context.Context, c *menu.Call) (string, error) {
		id, err := strconv.ParseInt(strings.TrimSpace(c.Text), 10, 64)
		if err != nil {
			return "", c.Reply(ctx, fmt.Sprintf("Not a user id: %s", c.Text))
		}
		b.Main.Authorize(ports.UserID(id))
		return "", c.MultiReply(ctx, "Authenticated users", userLines(b.Main.AuthenticatedUsers()))
	}, menu.MenuOnExit())

	m.Handle("get_my_id", func(ctx context.Context, c *menu.Call) (string, error) {
		return "", c.Reply(ctx, fmt.Sprintf("Your user id is: %d", c.User))
	}, menu.MenuOnExit())

	m.Handle("free_space", b.freeSpace, menu.MenuOnExit())

	return auth
}

func (b *Bot) freeSpace(ctx context.Context, c *menu.Call) (string, error) {
	cfg := b.deps.Config
	for _, dir := range []string{cfg.DirMovies, cfg.DirTVShows} {
		free, err := b.deps.Client.FreeSpace(ctx, dir)
		if err != nil {
			if rerr := c.Reply(ctx, fmt.Sprintf("%s: failed: %v", dir, err)); rerr != nil {
				return "", rerr
			}
			continue
		}
		if err := c.Reply(ctx, fmt.Sprintf("%s: %s free", dir, humanize.IBytes(uint64(free)))); err != nil {
			return "", err
		}
	}
	return "", nil
}

func userLines(users []ports.UserID) []string {
	lines := make([]string, 0, len(users))
	for _, user := range users {
		lines = append(lines, strconv.FormatInt(int64(user), 10))
	}
	return lines
}
