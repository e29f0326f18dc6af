// Package convert runs ffmpeg transcode jobs in the background and tracks
// them through metadata files written next to each output, so finished
// conversions survive restarts.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"torrentcast/internal/metrics"
)

// MetadataExtension is appended to an output path to name its metadata file.
const MetadataExtension = ".metadata_json"

// DefaultCodecSwitches produce an H.264 baseline MP4 most DLNA renderers
// accept, keeping all streams and chapters from the input.
var DefaultCodecSwitches = []string{
	"-map", "0",
	"-map_chapters", "0",
	"-scodec", "mov_text",
	"-vcodec", "libx264",
	"-pix_fmt", "yuv420p",
	"-profile:v", "baseline",
}

// Metadata describes one conversion job. It is persisted as JSON before the
// job starts so partially converted outputs remain attributable.
type Metadata struct {
	OriginalFile  string  `json:"original_file"`
	ConvertedFile string  `json:"converted_file"`
	CodecSwitches string  `json:"ffmpeg_codec_switches"`
	Identifier    string  `json:"identifier"`
	Time          float64 `json:"time"`
	TorrentID     int64   `json:"torrent_id,omitempty"`
	FileID        int     `json:"file_id,omitempty"`
}

// Tags attribute a conversion to the torrent file it came from.
type Tags struct {
	TorrentID int64
	FileID    int
}

// Converter launches ffmpeg jobs as detached goroutines and keeps the set of
// running job identifiers. Job failures are logged, never returned to the
// caller that started them.
type Converter struct {
	ffmpegPath string
	mediaDirs  []string
	logger     *slog.Logger

	// run executes one ffmpeg invocation; tests swap it out.
	run func(name string, args ...string) ([]byte, error)

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func New(ffmpegPath string, mediaDirs []string, logger *slog.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{
		ffmpegPath: ffmpegPath,
		mediaDirs:  mediaDirs,
		logger:     logger,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
		running: make(map[string]struct{}),
	}
}

// MetadataPath names the metadata file for an output path.
func MetadataPath(outputPath string) string {
	return outputPath + MetadataExtension
}

// Convert writes the job's metadata file and starts ffmpeg in the
// background. The returned metadata identifies the running job; its output
// lands next to the input as "<input>_converted.mp4".
func (c *Converter) Convert(filePath string, tags Tags) (Metadata, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("convert: stat input: %w", err)
	}
	if info.IsDir() {
		return Metadata{}, fmt.Errorf("convert: %s is a directory", filePath)
	}

	outputPath := filePath + "_converted.mp4"
	md := Metadata{
		OriginalFile:  filePath,
		ConvertedFile: outputPath,
		CodecSwitches: strings.Join(DefaultCodecSwitches, " "),
		Identifier:    newIdentifier(),
		Time:          float64(time.Now().UnixMilli()) / 1000,
		TorrentID:     tags.TorrentID,
		FileID:        tags.FileID,
	}
	if err := writeMetadata(MetadataPath(outputPath), md); err != nil {
		return Metadata{}, err
	}

	c.mu.Lock()
	c.running[md.Identifier] = struct{}{}
	c.mu.Unlock()
	metrics.ConversionsActive.Inc()
	metrics.ConversionStartsTotal.Inc()

	c.wg.Add(1)
	go c.runJob(md)
	return md, nil
}

func (c *Converter) runJob(md Metadata) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.running, md.Identifier)
		c.mu.Unlock()
		metrics.ConversionsActive.Dec()
	}()

	args := []string{"-y", "-i", md.OriginalFile}
	args = append(args, strings.Fields(md.CodecSwitches)...)
	args = append(args, md.ConvertedFile)

	c.logger.Info("conversion started",
		slog.String("input", md.OriginalFile),
		slog.String("output", md.ConvertedFile),
		slog.String("id", md.Identifier))

	output, err := c.run(c.ffmpegPath, args...)
	if err != nil {
		metrics.ConversionFailuresTotal.Inc()
		c.logger.Error("conversion failed",
			slog.String("input", md.OriginalFile),
			slog.String("output", md.ConvertedFile),
			slog.String("id", md.Identifier),
			slog.String("error", err.Error()),
			slog.String("ffmpegOutput", string(output)))
		return
	}
	c.logger.Info("conversion finished",
		slog.String("input", md.OriginalFile),
		slog.String("output", md.ConvertedFile),
		slog.String("id", md.Identifier))
}

// Running reports whether the job with the given identifier is in flight.
func (c *Converter) Running(identifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[identifier]
	return ok
}

// RunningIdentifiers returns a snapshot of in-flight job identifiers.
func (c *Converter) RunningIdentifiers() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, len(c.running))
	for id := range c.running {
		out[id] = struct{}{}
	}
	return out
}

// Wait blocks until all in-flight jobs finish.
func (c *Converter) Wait() {
	c.wg.Wait()
}

// Conversions walks the media directories for metadata files and returns the
// entries the filter accepts. A nil filter accepts everything; unreadable
// files are logged and skipped.
func (c *Converter) Conversions(filter func(Metadata) bool) []Metadata {
	var out []Metadata
	for _, dir := range c.mediaDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				c.logger.Warn("metadata walk error",
					slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), MetadataExtension) {
				return nil
			}
			md, err := readMetadata(path)
			if err != nil {
				c.logger.Warn("unreadable conversion metadata",
					slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if filter == nil || filter(md) {
				out = append(out, md)
			}
			return nil
		})
		if err != nil {
			c.logger.Warn("metadata walk failed",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
	return out
}

// OutputExists accepts metadata whose converted file is on disk. It is the
// usual filter for listing finished conversions.
func OutputExists(md Metadata) bool {
	info, err := os.Stat(md.ConvertedFile)
	return err == nil && !info.IsDir()
}

// Delete removes a conversion's output file and its metadata file. Both
// removals are attempted; errors are joined.
func (c *Converter) Delete(md Metadata) error {
	var errs []error
	if err := os.Remove(md.ConvertedFile); err != nil {
		errs = append(errs, fmt.Errorf("convert: remove output: %w", err))
	} else {
		c.logger.Info("deleted converted file", slog.String("path", md.ConvertedFile))
	}
	metadataPath := MetadataPath(md.ConvertedFile)
	if err := os.Remove(metadataPath); err != nil {
		errs = append(errs, fmt.Errorf("convert: remove metadata: %w", err))
	} else {
		c.logger.Info("deleted conversion metadata", slog.String("path", metadataPath))
	}
	return errors.Join(errs...)
}

func writeMetadata(path string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("convert: encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("convert: write metadata: %w", err)
	}
	return nil
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// newIdentifier keeps a timestamp prefix so job ids sort and correlate with
// log events.
func newIdentifier() string {
	return fmt.Sprintf("%d_%s", time.Now().Unix(), uuid.NewString())
}
