package bot

import (
	"context"
	"errors"
	"fmt"

	"torrentcast/internal/convert"
	"torrentcast/internal/domain"
	"torrentcast/internal/menu"
	"torrentcast/internal/upnp"
)

var castLayout = [][]string{
	{"play", "pause", "stop"},
	{"volume_up", "volume_down"},
	{"seek_back", "seek_forward", "seek_time"},
	{"cast_torrent_file", "cast_converted_file"},
	{"back"},
}

const (
	castDevicesKey = "cast_devices"
	castDeviceKey  = "cast_device"

	volumeStep = 3
	seekStep   = 30
)

func (b *Bot) buildCastMenu() *menu.Menu {
	cfg := b.deps.Config
	m := menu.New(menu.Config{
		Name:            "cast",
		Layout:          castLayout,
		Logger:          b.deps.Logger,
		UserDataTTL:     cfg.UserDataTTL,
		UserDataMaxSize: cfg.UserDataMaxSize,
	})

	m.Handle("choose_device", b.chooseDevice)

	m.Handle("play", b.castCommand(func(ctx context.Context, ctrl CastController) error {
		_, err := ctrl.SendPlay(ctx)
		return err
	}), menu.MenuOnExit())
	m.Handle("pause", b.castCommand(func(ctx context.Context, ctrl CastController) error {
		_, err := ctrl.SendPause(ctx)
		return err
	}), menu.MenuOnExit())
	m.Handle("stop", b.castCommand(func(ctx context.Context, ctrl CastController) error {
		_, err := ctrl.SendStop(ctx)
		return err
	}), menu.MenuOnExit())

	m.Handle("volume_up", b.castCommand(b.changeVolume(volumeStep)), menu.MenuOnExit())
	m.Handle("volume_down", b.castCommand(b.changeVolume(-volumeStep)), menu.MenuOnExit())

	m.Handle("seek_back", b.castCommand(b.seekRelative(-seekStep)), menu.MenuOnExit())
	m.Handle("seek_forward", b.castCommand(b.seekRelative(seekStep)), menu.MenuOnExit())

	m.Handle("seek_time", func(ctx context.Context, c *menu.Call) (string, error) {
		if err := c.ReplyRemove(ctx, "Enter time (HH:MM:SS or seconds):"); err != nil {
			return "", err
		}
		return "seek_time_value", nil
	})
	m.Handle("seek_time_value", func(ctx context.Context, c *menu.Call) (string, error) {
		ctrl, ok := b.castController(c)
		if !ok {
			return "", c.Reply(ctx, "No device selected.")
		}
		if _, err := ctrl.Seek(ctx, c.Text); err != nil {
			return "", c.Reply(ctx, fmt.Sprintf("Failed: %v", err))
		}
		return "", nil
	}, menu.MenuOnExit())

	menu.RegisterTorrentFileHandler(m, b.flows, "cast_torrent_file", b.castTorrentFile, "")

	m.Handle("cast_converted_file", b.promptConversionChoice("cast_converted_file_choice"))
	m.Handle("cast_converted_file_choice", b.chooseConversion(b.castConvertedFile))

	return m
}

// chooseDevice runs discovery, prompts with the indexed device list and
// resolves the reply. Unresolvable replies re-run discovery so a stale
// keyboard recovers by itself.
func (b *Bot) chooseDevice(ctx context.Context, c *menu.Call) (string, error) {
	if v, ok := c.Data().Value(castDevicesKey); ok {
		devices, _ := v.([]*upnp.Device)
		if i, ok := menu.ChoiceToNumber(c.Text); ok && i >= 0 && i < len(devices) {
			device := devices[i]
			c.Data().SetValue(castDeviceKey, device)
			c.Data().Delete(castDevicesKey)
			if err := c.Reply(ctx, fmt.Sprintf("Casting to %s", device.String())); err != nil {
				return "", err
			}
			return c.Invoke(ctx, "main_menu")
		}
	}

	devices, err := b.deps.Discover(ctx)
	if err != nil {
		if rerr := c.Reply(ctx, fmt.Sprintf("Device discovery failed: %v", err)); rerr != nil {
			return "", rerr
		}
		return c.Invoke(ctx, "main_menu")
	}
	if len(devices) == 0 {
		if err := c.Reply(ctx, "No cast devices found."); err != nil {
			return "", err
		}
		return c.Invoke(ctx, "main_menu")
	}

	c.Data().SetValue(castDevicesKey, devices)
	keyboard := [][]string{{"Cancel"}}
	for i, device := range devices {
		keyboard = append(keyboard, []string{fmt.Sprintf("%d: %s", i, device.String())})
	}
	if err := c.ReplyKeyboard(ctx, "Choose cast device:", keyboard); err != nil {
		return "", err
	}
	return "choose_device", nil
}

func (b *Bot) castController(c *menu.Call) (CastController, bool) {
	v, ok := c.Data().Value(castDeviceKey)
	if !ok {
		return nil, false
	}
	device, ok := v.(*upnp.Device)
	if !ok {
		return nil, false
	}
	return b.controller(device), true
}

func (b *Bot) castCommand(fn func(ctx context.Context, ctrl CastController) error) menu.HandlerFunc {
	return func(ctx context.Context, c *menu.Call) (string, error) {
		ctrl, ok := b.castController(c)
		if !ok {
			return "", c.Reply(ctx, "No device selected.")
		}
		if err := fn(ctx, ctrl); err != nil {
			return "", c.Reply(ctx, fmt.Sprintf("Failed: %v", err))
		}
		return "", nil
	}
}

func (b *Bot) changeVolume(delta int) func(ctx context.Context, ctrl CastController) error {
	return func(ctx context.Context, ctrl CastController) error {
		volume, err := ctrl.Volume(ctx)
		if err != nil {
			return err
		}
		_, err = ctrl.SetVolume(ctx, volume+delta)
		return err
	}
}

func (b *Bot) seekRelative(delta int) func(ctx context.Context, ctrl CastController) error {
	return func(ctx context.Context, ctrl CastController) error {
		info, err := ctrl.PositionInfo(ctx)
		if err != nil {
			return err
		}
		relTime := info["RelTime"]
		if relTime == "" {
			relTime = "00:00:00"
		}
		seconds, err := upnp.ParseClock(relTime)
		if err != nil {
			return err
		}
		_, err = ctrl.Seek(ctx, upnp.FormatClock(seconds+delta))
		return err
	}
}

func (b *Bot) castTorrentFile(ctx context.Context, c *menu.Call, file domain.TorrentFile) ([]string, error) {
	ctrl, ok := b.castController(c)
	if !ok {
		return nil, errors.New("no device selected")
	}
	filePath, err := b.deps.Client.FilePath(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := ctrl.CastFile(ctx, filePath); err != nil {
		return nil, err
	}
	return []string{filePath}, nil
}

func (b *Bot) castConvertedFile(ctx context.Context, c *menu.Call, md convert.Metadata) error {
	ctrl, ok := b.castController(c)
	if !ok {
		return errors.New("no device selected")
	}
	if err := ctrl.CastFile(ctx, md.ConvertedFile); err != nil {
		return err
	}
	return c.Reply(ctx, fmt.Sprintf("Casting %s", md.ConvertedFile))
}

// teardownCast closes the selected device's controller and clears the
// selection.
func (b *Bot) teardownCast(ctx context.Context, c *menu.Call) {
	if ctrl, ok := b.castController(c); ok {
		ctrl.Close(ctx)
	}
	c.Data().Delete(castDeviceKey)
	c.Data().Delete(castDevicesKey)
}
