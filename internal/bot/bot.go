// Package bot composes the conversational menus into one dispatchable bot:
// the authenticated main torrent menu, the admin panel, the conversion menu
// and the cast menu, all mounted on a single router.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"torrentcast/internal/app"
	"torrentcast/internal/convert"
	"torrentcast/internal/domain/ports"
	"torrentcast/internal/menu"
	"torrentcast/internal/upnp"
)

// FileConverter is the conversion capability the menus need.
type FileConverter interface {
	Convert(filePath string, tags convert.Tags) (convert.Metadata, error)
	Conversions(filter func(convert.Metadata) bool) []convert.Metadata
	Running(identifier string) bool
	Delete(md convert.Metadata) error
}

// CastController drives playback on one renderer. *upnp.Controller is the
// production implementation.
type CastController interface {
	CastFile(ctx context.Context, filePath string) error
	SendPlay(ctx context.Context) (map[string]string, error)
	SendPause(ctx context.Context) (map[string]string, error)
	SendStop(ctx context.Context) (map[string]string, error)
	Seek(ctx context.Context, target string) (map[string]string, error)
	PositionInfo(ctx context.Context) (map[string]string, error)
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) (map[string]string, error)
	Close(ctx context.Context)
}

// Deps are the collaborators the menus are built around.
type Deps struct {
	Config    app.Config
	Client    ports.TorrentClient
	Converter FileConverter

	// Discover lists castable renderers on the local network.
	Discover func(ctx context.Context) ([]*upnp.Device, error)
	// NewController builds the cast controller for one renderer.
	NewController func(device *upnp.Device) CastController

	Logger *slog.Logger
}

// Bot is the assembled conversation. Dispatch inbound messages through
// Router.
type Bot struct {
	Router *menu.Router
	Main   *menu.AuthMenu
	Admin  *menu.AuthMenu

	deps  Deps
	flows *menu.Flows

	mu          sync.Mutex
	controllers map[string]CastController
}

// New assembles the menus and mounts them on a router driven by sender.
func New(sender ports.Sender, d Deps) *Bot {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	b := &Bot{
		deps:        d,
		flows:       &menu.Flows{Client: d.Client, Logger: d.Logger},
		controllers: make(map[string]CastController),
	}

	b.Main = b.buildMainMenu()
	b.Admin = b.buildAdminMenu()
	convMenu := b.buildConvertMenu()
	castMenu := b.buildCastMenu()

	b.wireMenuLinks(b.Main.Menu, b.Admin, convMenu, castMenu)

	router := menu.NewRouter(sender, d.Logger)
	router.Mount(b.Main.Menu)
	router.Mount(b.Admin.Menu)
	router.Mount(convMenu)
	router.Mount(castMenu)
	router.SetEntry(b.Main.Menu)

	b.Router = router
	return b
}

// controller returns (creating on first use) the cast controller for the
// device, keyed by its UDN.
func (b *Bot) controller(device *upnp.Device) CastController {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctrl, ok := b.controllers[device.UDN]
	if !ok {
		ctrl = b.deps.NewController(device)
		b.controllers[device.UDN] = ctrl
	}
	return ctrl
}

// Close tears down every cast controller built so far: stops playback
// subscriptions and unmaps their served files.
func (b *Bot) Close(ctx context.Context) {
	b.mu.Lock()
	controllers := make([]CastController, 0, len(b.controllers))
	for _, ctrl := range b.controllers {
		controllers = append(controllers, ctrl)
	}
	b.controllers = make(map[string]CastController)
	b.mu.Unlock()
	for _, ctrl := range controllers {
		ctrl.Close(ctx)
	}
}
