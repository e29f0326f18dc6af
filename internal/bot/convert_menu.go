package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"torrentcast/internal/convert"
	"torrentcast/internal/domain"
	"torrentcast/internal/menu"
)

var convertLayout = [][]string{
	{"convert_torrent_file", "delete_file_conversion"},
	{"list_converted_files", "list_active_conversions"},
	{"back"},
}

const conversionListKey = "conversion_list"

func (b *Bot) buildConvertMenu() *menu.Menu {
	cfg := b.deps.Config
	m := menu.New(menu.Config{
		Name:            "convert",
		Layout:          convertLayout,
		Logger:          b.deps.Logger,
		UserDataTTL:     cfg.UserDataTTL,
		UserDataMaxSize: cfg.UserDataMaxSize,
	})

	menu.RegisterTorrentFileHandler(m, b.flows, "convert_torrent_file", b.convertTorrentFile, "")

	m.Handle("list_converted_files", b.listConvertedFiles, menu.MenuOnExit())
	m.Handle("list_active_conversions", b.listActiveConversions, menu.MenuOnExit())

	m.Handle("delete_file_conversion", b.promptConversionChoice("delete_file_conversion_choice"))
	m.Handle("delete_file_conversion_choice", b.chooseConversion(b.deleteConversion))

	return m
}

// convertTorrentFile starts a background conversion of the chosen file. An
// incomplete download only warns; the job is started anyway.
func (b *Bot) convertTorrentFile(ctx context.Context, c *menu.Call, file domain.TorrentFile) ([]string, error) {
	if file.Length == 0 || file.BytesCompleted < file.Length {
		warning := fmt.Sprintf("Warning: download not complete: %d / %d", file.BytesCompleted, file.Length)
		if err := c.Reply(ctx, warning); err != nil {
			return nil, err
		}
	}

	filePath, err := b.deps.Client.FilePath(ctx, file)
	if err != nil {
		return nil, err
	}
	md, err := b.deps.Converter.Convert(filePath, convert.Tags{
		TorrentID: file.TorrentID,
		FileID:    file.ID,
	})
	if err != nil {
		return nil, err
	}
	return []string{"started", md.Identifier, md.ConvertedFile}, nil
}

func (b *Bot) listConvertedFiles(ctx context.Context, c *menu.Call) (string, error) {
	conversions := b.deps.Converter.Conversions(convert.OutputExists)
	if len(conversions) == 0 {
		return "", c.Reply(ctx, "No converted files.")
	}
	for _, md := range conversions {
		if err := c.Reply(ctx, b.conversionRepr(md)); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (b *Bot) listActiveConversions(ctx context.Context, c *menu.Call) (string, error) {
	active := b.deps.Converter.Conversions(func(md convert.Metadata) bool {
		return b.deps.Converter.Running(md.Identifier)
	})
	if len(active) == 0 {
		return "", c.Reply(ctx, "No active conversions.")
	}
	for _, md := range active {
		if err := c.Reply(ctx, b.conversionRepr(md)); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (b *Bot) conversionRepr(md convert.Metadata) string {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return md.ConvertedFile
	}
	status := "finished"
	if b.deps.Converter.Running(md.Identifier) {
		status = "running"
	}
	return fmt.Sprintf("Conversion (%s):\n%s", status, data)
}

// promptConversionChoice lists the finished conversions as an indexed
// keyboard and stashes the listing so the follow-up choice resolves against
// the same snapshot.
func (b *Bot) promptConversionChoice(choiceState string) menu.HandlerFunc {
	return func(ctx context.Context, c *menu.Call) (string, error) {
		conversions := b.deps.Converter.Conversions(func(md convert.Metadata) bool {
			return convert.OutputExists(md) && !b.deps.Converter.Running(md.Identifier)
		})
		if len(conversions) == 0 {
			if err := c.Reply(ctx, "No converted files."); err != nil {
				return "", err
			}
			return c.Invoke(ctx, "main_menu")
		}
		c.Data().SetValue(conversionListKey, conversions)

		keyboard := [][]string{{"Cancel"}}
		for i, md := range conversions {
			keyboard = append(keyboard, []string{fmt.Sprintf("%d: %s", i, md.ConvertedFile)})
		}
		if err := c.ReplyKeyboard(ctx, "Choose converted file:", keyboard); err != nil {
			return "", err
		}
		return choiceState, nil
	}
}

// chooseConversion resolves the indexed choice against the stashed snapshot
// and hands the metadata to the action.
func (b *Bot) chooseConversion(action func(ctx context.Context, c *menu.Call, md convert.Metadata) error) menu.HandlerFunc {
	return func(ctx context.Context, c *menu.Call) (string, error) {
		conversions, _ := c.Data().Value(conversionListKey)
		list, _ := conversions.([]convert.Metadata)
		c.Data().Delete(conversionListKey)

		i, ok := menu.ChoiceToNumber(c.Text)
		if !ok || i < 0 || i >= len(list) {
			if err := c.Reply(ctx, "Error choosing converted file."); err != nil {
				return "", err
			}
			return c.Invoke(ctx, "main_menu")
		}
		if err := action(ctx, c, list[i]); err != nil {
			if rerr := c.Reply(ctx, fmt.Sprintf("Failed: %v", err)); rerr != nil {
				return "", rerr
			}
		}
		return c.Invoke(ctx, "main_menu")
	}
}

func (b *Bot) deleteConversion(ctx context.Context, c *menu.Call, md convert.Metadata) error {
	if err := b.deps.Converter.Delete(md); err != nil {
		return err
	}
	return c.Reply(ctx, fmt.Sprintf("Deleted %s", md.ConvertedFile))
}
