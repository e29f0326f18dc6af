package media

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"torrentcast/internal/domain"
	"torrentcast/internal/domain/ports"
	"torrentcast/internal/metrics"
)

const (
	torrentFilePrefix = "/TorrentFile/"
	notifyPrefix      = "/AVTransport/"

	dlnaTransferMode    = "Streaming"
	dlnaContentFeatures = "DLNA.ORG_OP=01;DLNA.ORG_FLAGS=01700000000000000000000000000000"
)

// Handler resolves media routes. Resolution order for GET and HEAD: a
// torrent-backed file, then an exact registered mapping, then a files listing
// for a known torrent id, then the torrents listing. NOTIFY requests are
// dispatched to the callback registered for the exact path.
type Handler struct {
	torrents ports.TorrentClient
	files    *FileRegistry
	notify   *NotifyRegistry
	logger   *slog.Logger
}

func NewHandler(torrents ports.TorrentClient, files *FileRegistry, notify *NotifyRegistry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{torrents: torrents, files: files, notify: notify, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == "NOTIFY" {
		h.handleNotify(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.handleMedia(w, r)
}

// handleNotify always acknowledges: devices retry aggressively on anything
// that looks like failure.
func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	fn, ok := h.notify.Lookup(r.URL.Path)
	if !ok {
		h.logger.Warn("notify without subscriber", slog.String("path", r.URL.Path))
		metrics.NotifyDispatchesTotal.WithLabelValues("unregistered").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	metrics.NotifyDispatchesTotal.WithLabelValues("dispatched").Inc()
	fn(w, r)
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	if torrentID, fileID, ok := parseTorrentFilePath(r.URL.Path); ok {
		if h.serveTorrentFile(w, r, torrentID, fileID) {
			return
		}
	}

	if filePath, ok := h.files.Lookup(r.URL.Path); ok {
		h.serveFile(w, r, filePath)
		return
	}

	if torrentID, ok := parseTorrentListingPath(r.URL.Path); ok {
		if h.serveFilesListing(w, r, torrentID) {
			return
		}
	}

	h.serveTorrentsListing(w, r)
}

// serveTorrentFile reports false when the torrent or file cannot be resolved
// so resolution falls through to the listings.
func (h *Handler) serveTorrentFile(w http.ResponseWriter, r *http.Request, torrentID int64, fileID int) bool {
	files, err := h.torrents.Files(r.Context(), torrentID)
	if err != nil {
		h.logger.Warn("torrent file resolution failed",
			slog.Int64("torrentId", torrentID),
			slog.String("error", err.Error()))
		return false
	}
	for _, tf := range files {
		if tf.ID != fileID {
			continue
		}
		filePath, err := h.torrents.FilePath(r.Context(), tf)
		if err != nil {
			h.logger.Warn("torrent file path failed",
				slog.String("file", tf.Key()),
				slog.String("error", err.Error()))
			return false
		}
		h.serveFile(w, r, filePath)
		return true
	}
	return false
}

func (h *Handler) serveFilesListing(w http.ResponseWriter, r *http.Request, torrentID int64) bool {
	files, err := h.torrents.Files(r.Context(), torrentID)
	if err != nil {
		return false
	}
	domain.SortFilesByName(files)
	reprs := make([]string, 0, len(files))
	for _, tf := range files {
		reprs = append(reprs, tf.Repr())
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"files": reprs})
	return true
}

func (h *Handler) serveTorrentsListing(w http.ResponseWriter, r *http.Request) {
	torrents, err := h.torrents.List(r.Context())
	if err != nil {
		h.logger.Error("torrents listing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "torrent_error", "torrent listing unavailable")
		return
	}
	reprs := make([]string, 0, len(torrents))
	for _, t := range torrents {
		reprs = append(reprs, t.Repr())
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"torrents": reprs})
}

// serveFile answers GET and HEAD with range support and the DLNA headers
// renderers expect. A malformed Range header degrades to serving the whole
// file rather than erroring.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, filePath string) {
	f, err := os.Open(filePath)
	if err != nil {
		h.logger.Warn("open failed", slog.String("path", filePath), slog.String("error", err.Error()))
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	size := info.Size()

	start, end := int64(0), size-1
	ranged := false
	if header := r.Header.Get("Range"); header != "" {
		if s, e, err := parseByteRange(header, size); err == nil {
			start, end, ranged = s, e, true
		} else {
			h.logger.Debug("range ignored", slog.String("range", header), slog.String("error", err.Error()))
		}
	}

	length := end - start + 1
	if size == 0 {
		start, end, length, ranged = 0, 0, 0, false
	}

	writeDLNAHeaders(w, r)
	w.Header().Set("Content-Type", detectContentType(filePath))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if ranged {
		w.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead || length == 0 {
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		h.logger.Error("seek failed", slog.String("path", filePath), slog.String("error", err.Error()))
		return
	}
	written, err := io.CopyN(w, f, length)
	metrics.MediaBytesServedTotal.Add(float64(written))
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("serve interrupted",
			slog.String("path", filePath),
			slog.Int64("written", written),
			slog.String("error", err.Error()))
	}
}

func writeDLNAHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("TransferMode.DLNA.ORG", dlnaTransferMode)
	w.Header().Set("ContentFeatures.DLNA.ORG", dlnaContentFeatures)
	if connection := r.Header.Get("Connection"); connection != "" {
		w.Header().Set("Connection", connection)
	}
}

func parseTorrentFilePath(path string) (int64, int, bool) {
	rest, ok := strings.CutPrefix(path, torrentFilePrefix)
	if !ok {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	torrentID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	fileID, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return torrentID, fileID, true
}

func parseTorrentListingPath(path string) (int64, bool) {
	rest, ok := strings.CutPrefix(path, torrentFilePrefix)
	if !ok {
		return 0, false
	}
	idPart := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		idPart = rest[:i]
	}
	torrentID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return torrentID, true
}

var (
	errInvalidRange        = errors.New("invalid range")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

func parseByteRange(value string, size int64) (int64, int64, error) {
	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bytes=") {
		return 0, 0, errInvalidRange
	}

	spec := strings.TrimSpace(value[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, errInvalidRange
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) == 1 {
		parts = append(parts, "")
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	if startStr == "" {
		if endStr == "" {
			return 0, 0, errInvalidRange
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, errInvalidRange
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errInvalidRange
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		return start, size - 1, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 || end < start {
		return 0, 0, errInvalidRange
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body, _ := json.Marshal(errorEnvelope{Error: errorPayload{Code: code, Message: message}})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "encode failed")
		return
	}
	writeDLNAHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}
