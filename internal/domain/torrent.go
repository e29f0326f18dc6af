package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Torrent is the view of one torrent held by the remote client. Completed and
// total byte counts cover selected files only.
type Torrent struct {
	ID          int64
	Name        string
	Status      TorrentStatus
	DownloadDir string
	TotalBytes  int64
	DoneBytes   int64
}

type TorrentStatus string

const (
	TorrentStopped     TorrentStatus = "stopped"
	TorrentQueued      TorrentStatus = "queued"
	TorrentChecking    TorrentStatus = "checking"
	TorrentDownloading TorrentStatus = "downloading"
	TorrentSeeding     TorrentStatus = "seeding"
	TorrentUnknown     TorrentStatus = "unknown"
)

// Repr renders the short form used in choice keyboards: "{id}: {name}".
func (t Torrent) Repr() string {
	return fmt.Sprintf("%d: %s", t.ID, t.Name)
}

// StatusRepr renders the long form used in listings, with status, percent and
// completed/total sizes of the selected files.
func (t Torrent) StatusRepr() string {
	return fmt.Sprintf("%d: %s %d%% %s/%s\n%s",
		t.ID, t.Status, t.Percent(),
		humanize.IBytes(uint64(t.DoneBytes)), humanize.IBytes(uint64(t.TotalBytes)),
		t.Name)
}

// Percent is the selected-files completion percentage. A torrent with no
// selected bytes counts as fully complete.
func (t Torrent) Percent() int {
	return percent(t.DoneBytes, t.TotalBytes)
}

// TorrentFile is one constituent file of a torrent, addressed by the compound
// (torrent id, file id) key.
type TorrentFile struct {
	TorrentID      int64
	ID             int
	Name           string
	Length         int64
	BytesCompleted int64
	Wanted         bool
	Priority       int64
}

// Key renders the compound id prefix "{torrent_id}.{file_id}".
func (f TorrentFile) Key() string {
	return fmt.Sprintf("%d.%d", f.TorrentID, f.ID)
}

// Repr renders the keyboard form: "{torrent_id}.{file_id}: {name}".
func (f TorrentFile) Repr() string {
	return fmt.Sprintf("%s: %s", f.Key(), f.Name)
}

// StatusRepr appends percent, size and the DISABLED marker for unselected files.
func (f TorrentFile) StatusRepr() string {
	var disabled string
	if !f.Wanted {
		disabled = " DISABLED"
	}
	return fmt.Sprintf("%s\n%d%% %s%s", f.Repr(), f.Percent(), humanize.IBytes(uint64(f.Length)), disabled)
}

func (f TorrentFile) Percent() int {
	return percent(f.BytesCompleted, f.Length)
}

// percent guards against division by zero: an empty file is complete.
func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(done * 100 / total)
}

// FileUpdate describes one file's selection/priority change. Nil fields are
// left untouched.
type FileUpdate struct {
	FileID   int
	Wanted   *bool
	Priority *int64
}

// Wanted returns a FileUpdate toggling the selection flag to the given value.
func FileWanted(fileID int, wanted bool) FileUpdate {
	return FileUpdate{FileID: fileID, Wanted: &wanted}
}

// SortFilesByName orders files for prompting; ties broken by file id so the
// ordering is stable across listings.
func SortFilesByName(files []TorrentFile) {
	sort.Slice(files, func(i, j int) bool {
		if c := strings.Compare(files[i].Name, files[j].Name); c != 0 {
			return c < 0
		}
		return files[i].ID < files[j].ID
	})
}
