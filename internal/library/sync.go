package library

import (
	"log/slog"
	"strings"
	"time"

	"github.com/starford/cueflow/internal/checksum"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/storage"
	"github.com/starford/cueflow/internal/timeline"
)

// Sync walks the library and brings the catalog up to date:
//   - new/changed show files are decoded and upserted
//   - files removed from disk are deleted from the catalog
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := catalogFile(db, m.Path, data); err != nil {
			logger.Warn("sync: catalog failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: cataloged", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteShow(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// catalogFile decodes show bytes and upserts the resulting row.
func catalogFile(db *DB, path string, data []byte) error {
	tl, err := timeline.Decode(path, data)
	if err != nil {
		return err
	}

	protoSet := map[string]struct{}{}
	names := []string{tl.Name}
	for _, tr := range tl.Tracks {
		protoSet[string(tr.Protocol)] = struct{}{}
		if tr.Name != "" {
			names = append(names, tr.Name)
		}
	}
	protocols := make([]string, 0, len(protoSet))
	for _, p := range []models.Protocol{models.ProtocolDMX, models.ProtocolMIDI, models.ProtocolOSC} {
		if _, ok := protoSet[string(p)]; ok {
			protocols = append(protocols, string(p))
		}
	}

	row := ShowRow{
		Path:       path,
		Name:       tl.Name,
		Format:     timeline.Format(path),
		Checksum:   checksum.Sum(data),
		Duration:   tl.Duration(),
		TrackCount: len(tl.Tracks),
		Protocols:  protocols,
		UpdatedAt:  time.Now(),
	}
	return db.UpsertShow(row, strings.Join(names, " "))
}
