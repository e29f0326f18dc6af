package transmission

import (
	"testing"

	"github.com/hekmon/cunits/v2"
	"github.com/hekmon/transmissionrpc/v3"

	"torrentcast/internal/domain"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   transmissionrpc.TorrentStatus
		want domain.TorrentStatus
	}{
		{transmissionrpc.TorrentStatusStopped, domain.TorrentStopped},
		{transmissionrpc.TorrentStatusCheckWait, domain.TorrentChecking},
		{transmissionrpc.TorrentStatusCheck, domain.TorrentChecking},
		{transmissionrpc.TorrentStatusDownloadWait, domain.TorrentQueued},
		{transmissionrpc.TorrentStatusDownload, domain.TorrentDownloading},
		{transmissionrpc.TorrentStatusSeedWait, domain.TorrentQueued},
		{transmissionrpc.TorrentStatusSeed, domain.TorrentSeeding},
		{transmissionrpc.TorrentStatus(99), domain.TorrentUnknown},
	}
	for _, tc := range cases {
		if got := mapStatus(tc.in); got != tc.want {
			t.Errorf("mapStatus(%d) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestToTorrentUsesSelectedBytes(t *testing.T) {
	id := int64(3)
	name := "show"
	dir := "/plex/media/TV Shows"
	status := transmissionrpc.TorrentStatusDownload
	size := cunits.ImportInByte(1000)
	left := int64(250)

	got := toTorrent(transmissionrpc.Torrent{
		ID:            &id,
		Name:          &name,
		DownloadDir:   &dir,
		Status:        &status,
		SizeWhenDone:  &size,
		LeftUntilDone: &left,
	})
	if got.ID != 3 || got.Name != "show" || got.DownloadDir != dir {
		t.Fatalf("got %+v", got)
	}
	if got.TotalBytes != 1000 || got.DoneBytes != 750 {
		t.Fatalf("bytes = %d/%d", got.DoneBytes, got.TotalBytes)
	}
	if got.Status != domain.TorrentDownloading {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestToTorrentToleratesMissingFields(t *testing.T) {
	got := toTorrent(transmissionrpc.Torrent{})
	if got.Status != domain.TorrentUnknown {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Percent() != 100 {
		t.Fatalf("empty torrent percent = %d, want 100", got.Percent())
	}
}

func TestToFilesPairsStats(t *testing.T) {
	files := []transmissionrpc.TorrentFile{
		{Name: "show/s01e01.mkv", Length: 100, BytesCompleted: 100},
		{Name: "show/s01e02.mkv", Length: 200, BytesCompleted: 0},
	}
	stats := []transmissionrpc.TorrentFileStat{
		{Wanted: true, Priority: 1},
		{Wanted: false, Priority: -1},
	}
	got := toFiles(7, transmissionrpc.Torrent{Files: files, FileStats: stats})
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Key() != "7.0" || got[1].Key() != "7.1" {
		t.Fatalf("keys = %s, %s", got[0].Key(), got[1].Key())
	}
	if !got[0].Wanted || got[0].Priority != 1 {
		t.Fatalf("file 0 = %+v", got[0])
	}
	if got[1].Wanted || got[1].Priority != -1 {
		t.Fatalf("file 1 = %+v", got[1])
	}
}

func TestToFilesDefaultsWantedWithoutStats(t *testing.T) {
	files := []transmissionrpc.TorrentFile{
		{Name: "movie.mkv", Length: 100, BytesCompleted: 50},
	}
	got := toFiles(2, transmissionrpc.Torrent{Files: files})
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	if !got[0].Wanted || got[0].Priority != 0 {
		t.Fatalf("file = %+v", got[0])
	}
}

func TestBuildSetPayloadBatchesAllUpdates(t *testing.T) {
	wanted := true
	unwanted := false
	high := int64(1)
	low := int64(-1)
	normal := int64(0)

	payload := buildSetPayload(5, []domain.FileUpdate{
		{FileID: 0, Wanted: &wanted},
		{FileID: 1, Wanted: &unwanted},
		{FileID: 2, Priority: &high},
		{FileID: 3, Priority: &low},
		{FileID: 4, Priority: &normal},
	})
	if len(payload.IDs) != 1 || payload.IDs[0] != 5 {
		t.Fatalf("ids = %v", payload.IDs)
	}
	if len(payload.FilesWanted) != 1 || payload.FilesWanted[0] != 0 {
		t.Fatalf("wanted = %v", payload.FilesWanted)
	}
	if len(payload.FilesUnwanted) != 1 || payload.FilesUnwanted[0] != 1 {
		t.Fatalf("unwanted = %v", payload.FilesUnwanted)
	}
	if len(payload.PriorityHigh) != 1 || len(payload.PriorityLow) != 1 || len(payload.PriorityNormal) != 1 {
		t.Fatalf("priorities = %v %v %v", payload.PriorityHigh, payload.PriorityLow, payload.PriorityNormal)
	}
}
