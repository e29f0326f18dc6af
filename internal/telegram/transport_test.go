package telegram

import (
	"io"
	"log/slog"
	"testing"

	"torrentcast/internal/domain/ports"
)

func TestNewOffline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := New("test-token", logger, Options{Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	if tr.bot == nil {
		t.Fatal("no bot constructed")
	}
}

func TestBuildMarkupKeyboard(t *testing.T) {
	markup := buildMarkup(ports.Reply{
		Text:     "Choose torrent:",
		Keyboard: [][]string{{"Cancel"}, {"1: ubuntu.iso"}},
	})
	if markup.RemoveKeyboard {
		t.Fatal("keyboard reply must not remove the keyboard")
	}
	if !markup.ResizeKeyboard || !markup.OneTimeKeyboard {
		t.Fatalf("markup = %+v", markup)
	}
	if len(markup.ReplyKeyboard) != 2 {
		t.Fatalf("rows = %d", len(markup.ReplyKeyboard))
	}
	if markup.ReplyKeyboard[1][0].Text != "1: ubuntu.iso" {
		t.Fatalf("button = %+v", markup.ReplyKeyboard[1][0])
	}
}

func TestBuildMarkupRemove(t *testing.T) {
	markup := buildMarkup(ports.Reply{Text: "Enter password:", RemoveKeyboard: true})
	if !markup.RemoveKeyboard {
		t.Fatal("RemoveKeyboard not set")
	}
	if len(markup.ReplyKeyboard) != 0 {
		t.Fatalf("keyboard = %+v", markup.ReplyKeyboard)
	}
}

func TestBuildMarkupPlainText(t *testing.T) {
	markup := buildMarkup(ports.Reply{Text: "ok"})
	if markup.RemoveKeyboard || len(markup.ReplyKeyboard) != 0 {
		t.Fatalf("markup = %+v", markup)
	}
}
