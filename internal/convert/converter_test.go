package convert

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFFmpeg records invocations and optionally creates the output file,
// blocking until released when a gate channel is set.
type fakeFFmpeg struct {
	mu    sync.Mutex
	calls [][]string
	gate  chan struct{}
	err   error
}

func (f *fakeFFmpeg) run(name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return []byte("boom"), f.err
	}
	output := args[len(args)-1]
	if err := os.WriteFile(output, []byte("converted"), 0o644); err != nil {
		return nil, err
	}
	return []byte("ok"), nil
}

func newTestConverter(t *testing.T, dirs ...string) (*Converter, *fakeFFmpeg) {
	t.Helper()
	c := New("ffmpeg", dirs, testLogger())
	fake := &fakeFFmpeg{}
	c.run = fake.run
	return c, fake
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("raw video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertWritesMetadataAndRunsJob(t *testing.T) {
	dir := t.TempDir()
	c, fake := newTestConverter(t, dir)
	input := writeInput(t, dir, "movie.mkv")

	md, err := c.Convert(input, Tags{TorrentID: 4, FileID: 2})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if md.ConvertedFile != input+"_converted.mp4" {
		t.Errorf("ConvertedFile = %q", md.ConvertedFile)
	}
	if md.TorrentID != 4 || md.FileID != 2 {
		t.Errorf("tags = %d/%d", md.TorrentID, md.FileID)
	}
	if md.Identifier == "" || md.Time == 0 {
		t.Errorf("metadata incomplete: %+v", md)
	}

	// Metadata file exists before the job can possibly have finished.
	data, err := os.ReadFile(MetadataPath(md.ConvertedFile))
	if err != nil {
		t.Fatalf("metadata file: %v", err)
	}
	for _, want := range []string{
		`"original_file"`, `"converted_file"`, `"ffmpeg_codec_switches"`,
		`"identifier"`, `"time"`, `"torrent_id": 4`, `"file_id": 2`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metadata missing %s:\n%s", want, data)
		}
	}

	c.Wait()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.calls) != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", len(fake.calls))
	}
	call := strings.Join(fake.calls[0], " ")
	want := "ffmpeg -y -i " + input + " " + strings.Join(DefaultCodecSwitches, " ") + " " + md.ConvertedFile
	if call != want {
		t.Errorf("ffmpeg call = %q, want %q", call, want)
	}
}

func TestConvertMissingInput(t *testing.T) {
	c, _ := newTestConverter(t, t.TempDir())
	if _, err := c.Convert(filepath.Join(t.TempDir(), "nope.mkv"), Tags{}); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestRunningIdentifierTracksJobLifetime(t *testing.T) {
	dir := t.TempDir()
	c, fake := newTestConverter(t, dir)
	fake.gate = make(chan struct{})
	input := writeInput(t, dir, "show.mkv")

	md, err := c.Convert(input, Tags{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !c.Running(md.Identifier) {
		t.Error("identifier not running while job in flight")
	}
	if _, ok := c.RunningIdentifiers()[md.Identifier]; !ok {
		t.Error("identifier missing from snapshot")
	}

	close(fake.gate)
	c.Wait()
	if c.Running(md.Identifier) {
		t.Error("identifier still running after job finished")
	}
}

func TestJobFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	c, fake := newTestConverter(t, dir)
	fake.err = errors.New("exit status 1")
	input := writeInput(t, dir, "movie.mkv")

	md, err := c.Convert(input, Tags{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	c.Wait()
	if c.Running(md.Identifier) {
		t.Error("failed job left identifier running")
	}
	// Metadata survives the failure for later inspection.
	if _, err := os.Stat(MetadataPath(md.ConvertedFile)); err != nil {
		t.Errorf("metadata file gone: %v", err)
	}
}

func TestConversionsWalksAndFilters(t *testing.T) {
	movies := t.TempDir()
	shows := t.TempDir()
	c, _ := newTestConverter(t, movies, shows)

	done := Metadata{
		OriginalFile:  filepath.Join(movies, "a.mkv"),
		ConvertedFile: filepath.Join(movies, "a.mkv_converted.mp4"),
		Identifier:    "id-a",
		Time:          float64(time.Now().Unix()),
	}
	if err := os.WriteFile(done.ConvertedFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeMetadata(MetadataPath(done.ConvertedFile), done); err != nil {
		t.Fatal(err)
	}

	orphan := Metadata{
		OriginalFile:  filepath.Join(shows, "b.mkv"),
		ConvertedFile: filepath.Join(shows, "b.mkv_converted.mp4"),
		Identifier:    "id-b",
	}
	if err := writeMetadata(MetadataPath(orphan.ConvertedFile), orphan); err != nil {
		t.Fatal(err)
	}

	all := c.Conversions(nil)
	if len(all) != 2 {
		t.Fatalf("all conversions = %d, want 2", len(all))
	}

	existing := c.Conversions(OutputExists)
	if len(existing) != 1 || existing[0].Identifier != "id-a" {
		t.Fatalf("existing conversions = %+v", existing)
	}
}

func TestDeleteRemovesOutputAndMetadata(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestConverter(t, dir)

	md := Metadata{ConvertedFile: filepath.Join(dir, "a.mp4")}
	if err := os.WriteFile(md.ConvertedFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeMetadata(MetadataPath(md.ConvertedFile), md); err != nil {
		t.Fatal(err)
	}

	if err := c.Delete(md); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(md.ConvertedFile); !os.IsNotExist(err) {
		t.Error("output file still present")
	}
	if _, err := os.Stat(MetadataPath(md.ConvertedFile)); !os.IsNotExist(err) {
		t.Error("metadata file still present")
	}

	// Deleting again reports both misses.
	if err := c.Delete(md); err == nil {
		t.Error("second Delete succeeded")
	}
}
