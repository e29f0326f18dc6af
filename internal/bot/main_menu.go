package bot

import (
	"context"
	"fmt"

	"torrentcast/internal/domain"
	"torrentcast/internal/menu"
)

var mainLayout = [][]string{
	{"add_tv_show", "add_movie"},
	{"start_torrent", "stop_torrent", "delete_torrent"},
	{"list_torrents", "list_torrent_files"},
	{"disable_all_torrent_files", "toggle_all_torrent_files", "toggle_torrent_file"},
	{"convert_menu", "cast_menu"},
	{"admin_menu", "exit"},
}

func (b *Bot) buildMainMenu() *menu.AuthMenu {
	cfg := b.deps.Config
	m := menu.New(menu.Config{
		Name:            "main",
		Layout:          mainLayout,
		Logger:          b.deps.Logger,
		UserDataTTL:     cfg.UserDataTTL,
		UserDataMaxSize: cfg.UserDataMaxSize,
	})
	auth := menu.NewAuth(m, menu.AuthConfig{
		Policy:       cfg.PasswordPolicy,
		PasswordAuth: true,
		AddOnSuccess: false,
		Users:        cfg.AuthenticatedUsers,
	}, b.deps.Logger)

	m.Handle("list_torrents", b.listTorrents, menu.MenuOnExit())
	m.Handle("exit", b.exitConversation)

	menu.RegisterMagnetHandler(m, "add_tv_show", b.addMagnetTo(cfg.DirTVShows), "")
	menu.RegisterMagnetHandler(m, "add_movie", b.addMagnetTo(cfg.DirMovies), "")

	menu.RegisterTorrentHandler(m, b.flows, "start_torrent", b.startTorrent, "")
	menu.RegisterTorrentHandler(m, b.flows, "stop_torrent", b.stopTorrent, "")
	menu.RegisterTorrentHandler(m, b.flows, "delete_torrent", b.deleteTorrent, "")
	menu.RegisterTorrentHandler(m, b.flows, "list_torrent_files", b.listTorrentFiles, "")
	menu.RegisterTorrentHandler(m, b.flows, "disable_all_torrent_files", b.disableAllFiles, "")
	menu.RegisterTorrentHandler(m, b.flows, "toggle_all_torrent_files", b.toggleAllFiles, "")
	menu.RegisterTorrentFileHandler(m, b.flows, "toggle_torrent_file", b.toggleFile, "")

	return auth
}

// wireMenuLinks registers the jumps between menus once every menu exists.
func (b *Bot) wireMenuLinks(main *menu.Menu, admin *menu.AuthMenu, convMenu, castMenu *menu.Menu) {
	main.Handle("convert_menu", func(ctx context.Context, c *menu.Call) (string, error) {
		return convMenu.Invoke(ctx, c, "main_menu")
	}, menu.NoPrefix())
	main.Handle("cast_menu", func(ctx context.Context, c *menu.Call) (string, error) {
		return castMenu.Invoke(ctx, c, "choose_device")
	}, menu.NoPrefix())
	main.Handle("admin_menu", func(ctx context.Context, c *menu.Call) (string, error) {
		return admin.Invoke(ctx, c, "start")
	}, menu.NoPrefix())

	admin.Handle("back_to_main", func(ctx context.Context, c *menu.Call) (string, error) {
		return main.Invoke(ctx, c, "main_menu")
	}, menu.NoPrefix())
	convMenu.Handle("back", func(ctx context.Context, c *menu.Call) (string, error) {
		return main.Invoke(ctx, c, "main_menu")
	}, menu.NoPrefix())
	castMenu.Handle("back", func(ctx context.Context, c *menu.Call) (string, error) {
		b.teardownCast(ctx, c)
		return main.Invoke(ctx, c, "main_menu")
	}, menu.NoPrefix())
}

func (b *Bot) listTorrents(ctx context.Context, c *menu.Call) (string, error) {
	torrents, err := b.deps.Client.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list torrents: %w", err)
	}
	if len(torrents) == 0 {
		return "", c.Reply(ctx, "No torrents.")
	}
	for _, t := range torrents {
		if err := c.Reply(ctx, t.StatusRepr()); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (b *Bot) exitConversation(ctx context.Context, c *menu.Call) (string, error) {
	if err := c.ReplyRemove(ctx, "Bye!"); err != nil {
		return "", err
	}
	return menu.End, nil
}

func (b *Bot) addMagnetTo(dir string) menu.MagnetFunc {
	return func(ctx context.Context, c *menu.Call, magnet string) ([]string, error) {
		t, err := b.deps.Client.AddMagnet(ctx, magnet, dir)
		if err != nil {
			return nil, err
		}
		return []string{t.Repr()}, nil
	}
}

func (b *Bot) startTorrent(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	return nil, b.deps.Client.Start(ctx, torrentID)
}

func (b *Bot) stopTorrent(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	return nil, b.deps.Client.Stop(ctx, torrentID)
}

func (b *Bot) deleteTorrent(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	return nil, b.deps.Client.Delete(ctx, torrentID)
}

func (b *Bot) listTorrentFiles(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	files, err := b.deps.Client.Files(ctx, torrentID)
	if err != nil {
		return nil, err
	}
	domain.SortFilesByName(files)
	lines := make([]string, 0, len(files))
	for _, tf := range files {
		lines = append(lines, tf.StatusRepr())
	}
	return lines, nil
}

func (b *Bot) disableAllFiles(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	files, err := b.deps.Client.Files(ctx, torrentID)
	if err != nil {
		return nil, err
	}
	updates := make([]domain.FileUpdate, 0, len(files))
	for _, tf := range files {
		updates = append(updates, domain.FileWanted(tf.ID, false))
	}
	return nil, b.deps.Client.UpdateFiles(ctx, torrentID, updates)
}

// toggleAllFiles flips every file's selection in one batched update.
func (b *Bot) toggleAllFiles(ctx context.Context, c *menu.Call, torrentID int64) ([]string, error) {
	files, err := b.deps.Client.Files(ctx, torrentID)
	if err != nil {
		return nil, err
	}
	updates := make([]domain.FileUpdate, 0, len(files))
	for _, tf := range files {
		updates = append(updates, domain.FileWanted(tf.ID, !tf.Wanted))
	}
	return nil, b.deps.Client.UpdateFiles(ctx, torrentID, updates)
}

func (b *Bot) toggleFile(ctx context.Context, c *menu.Call, file domain.TorrentFile) ([]string, error) {
	update := domain.FileWanted(file.ID, !file.Wanted)
	return nil, b.deps.Client.UpdateFiles(ctx, file.TorrentID, []domain.FileUpdate{update})
}
