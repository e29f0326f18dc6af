package menu

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"torrentcast/internal/domain"
	"torrentcast/internal/domain/ports"
)

var (
	torrentChoiceRe = regexp.MustCompile(`^(\d+): `)
	fileChoiceRe    = regexp.MustCompile(`^(\d+)\.(\d+): `)
)

// Flows bundles the reusable torrent conversation steps: prompting with a
// keyboard of torrent (or file) reprs and resolving the chat's choice back to
// the live object.
type Flows struct {
	Client ports.TorrentClient
	Logger *slog.Logger
}

func (f *Flows) torrents(ctx context.Context) ([]domain.Torrent, error) {
	torrents, err := f.Client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	return torrents, nil
}

// PromptTorrent sends a one-column keyboard of torrent reprs with a leading
// cancel row.
func (f *Flows) PromptTorrent(ctx context.Context, c *Call) error {
	torrents, err := f.torrents(ctx)
	if err != nil {
		return err
	}
	keyboard := [][]string{{"Cancel"}}
	for _, t := range torrents {
		keyboard = append(keyboard, []string{t.Repr()})
	}
	return c.ReplyKeyboard(ctx, "Choose torrent:", keyboard)
}

// ChoiceToTorrentID resolves a choice to a torrent id. The choice must match
// a repr of a currently present torrent; a bare leading number is not enough.
func (f *Flows) ChoiceToTorrentID(ctx context.Context, choice string) (int64, bool) {
	m := torrentChoiceRe.FindStringSubmatch(choice)
	if m == nil {
		return 0, false
	}
	torrents, err := f.torrents(ctx)
	if err != nil {
		return 0, false
	}
	for _, t := range torrents {
		if t.Repr() == choice {
			return t.ID, true
		}
	}
	return 0, false
}

// PromptTorrentFiles sends a keyboard of the torrent's file reprs, sorted by
// name, with a leading cancel row.
func (f *Flows) PromptTorrentFiles(ctx context.Context, c *Call, torrentID int64) error {
	files, err := f.Client.Files(ctx, torrentID)
	if err != nil {
		return fmt.Errorf("list torrent files: %w", err)
	}
	domain.SortFilesByName(files)
	keyboard := [][]string{{"Cancel"}}
	for _, tf := range files {
		keyboard = append(keyboard, []string{tf.Repr()})
	}
	return c.ReplyKeyboard(ctx, "Choose torrent file:", keyboard)
}

// ChoiceToTorrentFile resolves a "tid.fid: name" choice back to the live file.
func (f *Flows) ChoiceToTorrentFile(ctx context.Context, choice string) (domain.TorrentFile, bool) {
	m := fileChoiceRe.FindStringSubmatch(choice)
	if m == nil {
		return domain.TorrentFile{}, false
	}
	torrentID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return domain.TorrentFile{}, false
	}
	files, err := f.Client.Files(ctx, torrentID)
	if err != nil {
		return domain.TorrentFile{}, false
	}
	for _, tf := range files {
		if tf.Repr() == choice {
			return tf, true
		}
	}
	return domain.TorrentFile{}, false
}

// ChoiceToNumber extracts the leading index from a "%d: ..." choice.
func ChoiceToNumber(choice string) (int, bool) {
	m := torrentChoiceRe.FindStringSubmatch(choice)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MagnetName derives a short display name for a magnet link: the dn field
// when present, otherwise the truncated link itself.
func MagnetName(magnet string) string {
	if spec, err := metainfo.ParseMagnetUri(magnet); err == nil && spec.DisplayName != "" {
		return spec.DisplayName
	}
	if len(magnet) > 30 {
		return magnet[:30] + " ..."
	}
	return magnet
}

// MagnetFunc performs one magnet action and returns the lines to report.
type MagnetFunc func(ctx context.Context, c *Call, magnet string) ([]string, error)

// TorrentFunc performs one action on a chosen torrent.
type TorrentFunc func(ctx context.Context, c *Call, torrentID int64) ([]string, error)

// TorrentFileFunc performs one action on a chosen torrent file.
type TorrentFileFunc func(ctx context.Context, c *Call, file domain.TorrentFile) ([]string, error)

// RegisterMagnetHandler wires the two-step magnet flow onto the menu: prompt
// for a magnet link until one arrives, run the action, report the lines under
// the magnet's display name, then continue at onComplete.
func RegisterMagnetHandler(m *Menu, state string, action MagnetFunc, onComplete string) {
	if onComplete == "" {
		onComplete = "main_menu"
	}
	m.Handle(state, func(ctx context.Context, c *Call) (string, error) {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.Text)), "magnet:") {
			if err := c.ReplyRemove(ctx, "Enter magnet link (or 'cancel'):"); err != nil {
				return "", err
			}
			return state, nil
		}
		magnet := strings.TrimSpace(c.Text)
		lines, err := action(ctx, c, magnet)
		if err != nil {
			if rerr := c.Reply(ctx, fmt.Sprintf("Failed: %v", err)); rerr != nil {
				return "", rerr
			}
			return m.Invoke(ctx, c, onComplete)
		}
		label := fmt.Sprintf("%s(%q)", state, MagnetName(magnet))
		if err := c.MultiReply(ctx, label, lines); err != nil {
			return "", err
		}
		return m.Invoke(ctx, c, onComplete)
	})
}

// RegisterTorrentHandler wires the choose-a-torrent flow: prompt with the
// torrent keyboard until a current repr arrives, run the action, report,
// continue at onComplete.
func RegisterTorrentHandler(m *Menu, f *Flows, state string, action TorrentFunc, onComplete string) {
	if onComplete == "" {
		onComplete = "main_menu"
	}
	m.Handle(state, func(ctx context.Context, c *Call) (string, error) {
		torrentID, ok := f.ChoiceToTorrentID(ctx, c.Text)
		if !ok {
			if err := f.PromptTorrent(ctx, c); err != nil {
				return "", err
			}
			return state, nil
		}
		lines, err := action(ctx, c, torrentID)
		if err != nil {
			if rerr := c.Reply(ctx, fmt.Sprintf("Failed: %v", err)); rerr != nil {
				return "", rerr
			}
			return m.Invoke(ctx, c, onComplete)
		}
		label := fmt.Sprintf("%s(%d)", state, torrentID)
		if err := c.MultiReply(ctx, label, lines); err != nil {
			return "", err
		}
		return m.Invoke(ctx, c, onComplete)
	})
}

// RegisterTorrentFileHandler wires the two-keyboard flow: choose a torrent,
// then one of its files, then run the action. The file step lives in a
// derived state named state plus "_file_choice".
func RegisterTorrentFileHandler(m *Menu, f *Flows, state string, action TorrentFileFunc, onComplete string) {
	if onComplete == "" {
		onComplete = "main_menu"
	}
	fileState := state + "_file_choice"

	m.Handle(state, func(ctx context.Context, c *Call) (string, error) {
		torrentID, ok := f.ChoiceToTorrentID(ctx, c.Text)
		if !ok {
			if err := f.PromptTorrent(ctx, c); err != nil {
				return "", err
			}
			return state, nil
		}
		if err := f.PromptTorrentFiles(ctx, c, torrentID); err != nil {
			return "", err
		}
		return fileState, nil
	})

	m.Handle(fileState, func(ctx context.Context, c *Call) (string, error) {
		file, ok := f.ChoiceToTorrentFile(ctx, c.Text)
		if !ok {
			if err := c.Reply(ctx, "Error choosing torrent file."); err != nil {
				return "", err
			}
			return m.Invoke(ctx, c, onComplete)
		}
		lines, err := action(ctx, c, file)
		if err != nil {
			if rerr := c.Reply(ctx, fmt.Sprintf("Failed: %v", err)); rerr != nil {
				return "", rerr
			}
			return m.Invoke(ctx, c, onComplete)
		}
		label := fmt.Sprintf("%s(%s)", state, file.Key())
		if err := c.MultiReply(ctx, label, lines); err != nil {
			return "", err
		}
		return m.Invoke(ctx, c, onComplete)
	})
}
