package ports

import (
	"context"

	"torrentcast/internal/domain"
)

// TorrentClient is the remote torrent capability. Implementations talk to a
// running daemon; errors cross this boundary wrapped, never as panics.
type TorrentClient interface {
	List(ctx context.Context) ([]domain.Torrent, error)
	Get(ctx context.Context, id int64) (domain.Torrent, error)
	Start(ctx context.Context, id int64) error
	Stop(ctx context.Context, id int64) error
	// Delete removes the torrent and its downloaded data.
	Delete(ctx context.Context, id int64) error
	Files(ctx context.Context, id int64) ([]domain.TorrentFile, error)
	// UpdateFiles applies all changes in one RPC round trip.
	UpdateFiles(ctx context.Context, id int64, updates []domain.FileUpdate) error
	AddMagnet(ctx context.Context, magnet, downloadDir string) (domain.Torrent, error)
	// FilePath resolves a torrent file to its absolute path on local disk.
	FilePath(ctx context.Context, file domain.TorrentFile) (string, error)
	FreeSpace(ctx context.Context, dir string) (int64, error)
}
