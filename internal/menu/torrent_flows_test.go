package menu

import (
	"context"
	"strings"
	"testing"

	"torrentcast/internal/domain"
)

const testMagnet = "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&dn=Big+Movie"

func newFlowsFixture() (*fakeTorrentClient, *Flows) {
	client := &fakeTorrentClient{
		torrents: []domain.Torrent{
			{ID: 1, Name: "ubuntu.iso", Status: domain.TorrentDownloading},
			{ID: 2, Name: "show season 1", Status: domain.TorrentSeeding},
		},
		files: map[int64][]domain.TorrentFile{
			2: {
				{TorrentID: 2, ID: 1, Name: "s01e02.mkv", Length: 100, Wanted: true},
				{TorrentID: 2, ID: 0, Name: "s01e01.mkv", Length: 100, Wanted: true},
			},
		},
	}
	return client, &Flows{Client: client, Logger: testLogger()}
}

func TestChoiceToTorrentIDRequiresExactRepr(t *testing.T) {
	_, flows := newFlowsFixture()
	ctx := context.Background()

	if id, ok := flows.ChoiceToTorrentID(ctx, "1: ubuntu.iso"); !ok || id != 1 {
		t.Fatalf("got (%d, %v)", id, ok)
	}
	// A number with the wrong name must not resolve.
	if _, ok := flows.ChoiceToTorrentID(ctx, "1: something else"); ok {
		t.Fatal("stale repr resolved")
	}
	if _, ok := flows.ChoiceToTorrentID(ctx, "not a choice"); ok {
		t.Fatal("free text resolved")
	}
}

func TestChoiceToTorrentFile(t *testing.T) {
	_, flows := newFlowsFixture()
	ctx := context.Background()

	file, ok := flows.ChoiceToTorrentFile(ctx, "2.0: s01e01.mkv")
	if !ok || file.TorrentID != 2 || file.ID != 0 {
		t.Fatalf("got (%+v, %v)", file, ok)
	}
	if _, ok := flows.ChoiceToTorrentFile(ctx, "2.9: missing.mkv"); ok {
		t.Fatal("missing file resolved")
	}
	if _, ok := flows.ChoiceToTorrentFile(ctx, "garbage"); ok {
		t.Fatal("free text resolved")
	}
}

func TestChoiceToNumber(t *testing.T) {
	if n, ok := ChoiceToNumber("3: whatever"); !ok || n != 3 {
		t.Fatalf("got (%d, %v)", n, ok)
	}
	if _, ok := ChoiceToNumber("whatever"); ok {
		t.Fatal("free text resolved")
	}
}

func TestPromptTorrentKeyboard(t *testing.T) {
	_, flows := newFlowsFixture()
	sender := &fakeSender{}
	m := New(Config{Name: "main", Logger: testLogger()})
	call := &Call{User: 1, menu: m, sender: sender}

	if err := flows.PromptTorrent(context.Background(), call); err != nil {
		t.Fatal(err)
	}
	reply := sender.last(t)
	if reply.Text != "Choose torrent:" {
		t.Fatalf("text = %q", reply.Text)
	}
	if len(reply.Keyboard) != 3 || reply.Keyboard[0][0] != "Cancel" {
		t.Fatalf("keyboard = %v", reply.Keyboard)
	}
	if reply.Keyboard[1][0] != "1: ubuntu.iso" {
		t.Fatalf("keyboard = %v", reply.Keyboard)
	}
}

func TestPromptTorrentFilesSortedByName(t *testing.T) {
	_, flows := newFlowsFixture()
	sender := &fakeSender{}
	m := New(Config{Name: "main", Logger: testLogger()})
	call := &Call{User: 1, menu: m, sender: sender}

	if err := flows.PromptTorrentFiles(context.Background(), call, 2); err != nil {
		t.Fatal(err)
	}
	reply := sender.last(t)
	if reply.Keyboard[1][0] != "2.0: s01e01.mkv" || reply.Keyboard[2][0] != "2.1: s01e02.mkv" {
		t.Fatalf("keyboard = %v", reply.Keyboard)
	}
}

func TestMagnetName(t *testing.T) {
	if got := MagnetName(testMagnet); got != "Big Movie" {
		t.Fatalf("got %q", got)
	}
	long := "magnet:not really but quite long anyway, over thirty characters"
	if got := MagnetName(long); got != long[:30]+" ..." {
		t.Fatalf("got %q", got)
	}
	short := "magnet:short"
	if got := MagnetName(short); got != short {
		t.Fatalf("got %q", got)
	}
}

func TestMagnetHandlerFlow(t *testing.T) {
	client, _ := newFlowsFixture()
	m := New(Config{Name: "main", Layout: [][]string{{"add_movie"}}, Logger: testLogger()})
	RegisterMagnetHandler(m, "add_movie", func(ctx context.Context, c *Call, magnet string) ([]string, error) {
		added, err := client.AddMagnet(ctx, magnet, "/plex/media/Movies")
		if err != nil {
			return nil, err
		}
		return []string{added.Repr()}, nil
	}, "")

	sender := &fakeSender{}
	router := NewRouter(sender, testLogger())
	router.Mount(m)
	router.SetEntry(m)
	ctx := context.Background()

	for _, text := range []string{"/start", "Add Movie"} {
		if err := router.Dispatch(ctx, 1, text); err != nil {
			t.Fatal(err)
		}
	}
	if reply := sender.last(t); !strings.Contains(reply.Text, "magnet link") {
		t.Fatalf("reply = %q", reply.Text)
	}
	if got := router.State(1); got != m.Prefix("add_movie") {
		t.Fatalf("state = %q", got)
	}

	// Free text that is not a magnet keeps prompting.
	if err := router.Dispatch(ctx, 1, "still not a magnet"); err != nil {
		t.Fatal(err)
	}
	if got := router.State(1); got != m.Prefix("add_movie") {
		t.Fatalf("state = %q", got)
	}

	if err := router.Dispatch(ctx, 1, testMagnet); err != nil {
		t.Fatal(err)
	}
	if len(client.added) != 1 || client.added[0] != testMagnet {
		t.Fatalf("added = %v", client.added)
	}

	var sawResult bool
	for _, reply := range sender.replies {
		if strings.Contains(reply.Text, "99: added") {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatalf("result line missing; replies: %+v", sender.replies)
	}
	if reply := sender.last(t); reply.Text != "Enter command:" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if got := router.State(1); got != m.Prefix("process_main_menu_choice") {
		t.Fatalf("state = %q", got)
	}
}

func TestTorrentHandlerFlow(t *testing.T) {
	client, flows := newFlowsFixture()
	m := New(Config{Name: "main", Layout: [][]string{{"start_torrent"}}, Logger: testLogger()})
	RegisterTorrentHandler(m, flows, "start_torrent", func(ctx context.Context, c *Call, torrentID int64) ([]string, error) {
		if err := client.Start(ctx, torrentID); err != nil {
			return nil, err
		}
		return []string{"started"}, nil
	}, "")

	sender := &fakeSender{}
	router := NewRouter(sender, testLogger())
	router.Mount(m)
	router.SetEntry(m)
	ctx := context.Background()

	for _, text := range []string{"/start", "Start Torrent"} {
		if err := router.Dispatch(ctx, 1, text); err != nil {
			t.Fatal(err)
		}
	}
	if reply := sender.last(t); reply.Text != "Choose torrent:" {
		t.Fatalf("reply = %q", reply.Text)
	}

	if err := router.Dispatch(ctx, 1, "2: show season 1"); err != nil {
		t.Fatal(err)
	}
	if len(client.started) != 1 || client.started[0] != 2 {
		t.Fatalf("started = %v", client.started)
	}
	if got := router.State(1); got != m.Prefix("process_main_menu_choice") {
		t.Fatalf("state = %q", got)
	}
}

func TestTorrentFileHandlerFlow(t *testing.T) {
	_, flows := newFlowsFixture()
	m := New(Config{Name: "main", Layout: [][]string{{"toggle_torrent_file"}}, Logger: testLogger()})
	var toggled []string
	RegisterTorrentFileHandler(m, flows, "toggle_torrent_file", func(ctx context.Context, c *Call, file domain.TorrentFile) ([]string, error) {
		toggled = append(toggled, file.Key())
		return []string{"toggled"}, nil
	}, "")

	sender := &fakeSender{}
	router := NewRouter(sender, testLogger())
	router.Mount(m)
	router.SetEntry(m)
	ctx := context.Background()

	for _, text := range []string{"/start", "Toggle Torrent File"} {
		if err := router.Dispatch(ctx, 1, text); err != nil {
			t.Fatal(err)
		}
	}
	if reply := sender.last(t); reply.Text != "Choose torrent:" {
		t.Fatalf("reply = %q", reply.Text)
	}

	if err := router.Dispatch(ctx, 1, "2: show season 1"); err != nil {
		t.Fatal(err)
	}
	if reply := sender.last(t); reply.Text != "Choose torrent file:" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if got := router.State(1); got != m.Prefix("toggle_torrent_file_file_choice") {
		t.Fatalf("state = %q", got)
	}

	if err := router.Dispatch(ctx, 1, "2.1: s01e02.mkv"); err != nil {
		t.Fatal(err)
	}
	if len(toggled) != 1 || toggled[0] != "2.1" {
		t.Fatalf("toggled = %v", toggled)
	}
	if got := router.State(1); got != m.Prefix("process_main_menu_choice") {
		t.Fatalf("state = %q", got)
	}
}

func TestTorrentFileHandlerBadChoiceReturnsToMenu(t *testing.T) {
	_, flows := newFlowsFixture()
	m := New(Config{Name: "main", Layout: [][]string{{"toggle_torrent_file"}}, Logger: testLogger()})
	RegisterTorrentFileHandler(m, flows, "toggle_torrent_file", func(ctx context.Context, c *Call, file domain.TorrentFile) ([]string, error) {
		t.Fatal("action must not run")
		return nil, nil
	}, "")

	sender := &fakeSender{}
	router := NewRouter(sender, testLogger())
	router.Mount(m)
	router.SetEntry(m)
	ctx := context.Background()

	for _, text := range []string{"/start", "Toggle Torrent File", "2: show season 1", "2.9: nope"} {
		if err := router.Dispatch(ctx, 1, text); err != nil {
			t.Fatal(err)
		}
	}
	var sawError bool
	for _, reply := range sender.replies {
		if reply.Text == "Error choosing torrent file." {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("error reply missing; replies: %+v", sender.replies)
	}
	if got := router.State(1); got != m.Prefix("process_main_menu_choice") {
		t.Fatalf("state = %q", got)
	}
}
