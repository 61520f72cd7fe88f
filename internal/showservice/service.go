// Package showservice coordinates show storage, the catalog, and the
// playback engine.
package showservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/starford/cueflow/internal/apperr"
	"github.com/starford/cueflow/internal/checksum"
	"github.com/starford/cueflow/internal/engine"
	"github.com/starford/cueflow/internal/library"
	"github.com/starford/cueflow/internal/models"
	"github.com/starford/cueflow/internal/storage"
	"github.com/starford/cueflow/internal/timeline"
)

// ShowDetail is the full representation of a show.
type ShowDetail struct {
	Path      string           `json:"path"`
	Name      string           `json:"name"`
	Format    string           `json:"format"`
	Checksum  string           `json:"checksum"`
	Duration  float64          `json:"duration"`
	Timeline  *models.Timeline `json:"timeline"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ShowListItem is a lightweight item in a list response.
type ShowListItem struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Format     string    `json:"format"`
	Checksum   string    `json:"checksum"`
	Duration   float64   `json:"duration"`
	TrackCount int       `json:"track_count"`
	Protocols  []string  `json:"protocols"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Service coordinates storage, catalog, and engine operations.
type Service struct {
	store storage.Provider
	db    *library.DB
	eng   *engine.Engine
}

// NewService creates a new show service.
func NewService(store storage.Provider, db *library.DB, eng *engine.Engine) *Service {
	return &Service{store: store, db: db, eng: eng}
}

// GetShow reads a show from storage and decodes its timeline.
func (s *Service) GetShow(_ context.Context, path string) (*ShowDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(path, data)
}

// CreateShow writes a new show file and catalogs it.
func (s *Service) CreateShow(_ context.Context, path string, tl *models.Timeline) (*ShowDetail, error) {
	if !timeline.IsShowFile(path) {
		return nil, apperr.ErrValidation
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	data, err := timeline.Encode(path, tl)
	if err != nil {
		return nil, err
	}
	if _, err := timeline.Decode(path, data); err != nil {
		return nil, err
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}
	if err := s.CatalogFile(path, data); err != nil {
		return nil, err
	}
	return s.buildDetail(path, data)
}

// UpdateShow writes an updated timeline with optimistic concurrency.
// ifMatch, when non-empty, must equal the checksum of the stored bytes.
func (s *Service) UpdateShow(_ context.Context, path string, tl *models.Timeline, ifMatch string) (*ShowDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	data, err := timeline.Encode(path, tl)
	if err != nil {
		return nil, err
	}
	if _, err := timeline.Decode(path, data); err != nil {
		return nil, err
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}
	if err := s.CatalogFile(path, data); err != nil {
		return nil, err
	}
	return s.buildDetail(path, data)
}

// DeleteShow removes a show from storage and catalog.
func (s *Service) DeleteShow(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.db.DeleteShow(path)
}

// ListShows returns paginated shows with optional protocol filter.
func (s *Service) ListShows(_ context.Context, limit, offset int, protocol, sort string) ([]ShowListItem, int, error) {
	rows, total, err := s.db.ListShows(limit, offset, protocol, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ShowListItem, len(rows))
	for i, r := range rows {
		items[i] = ShowListItem{
			Path:       r.Path,
			Name:       r.Name,
			Format:     r.Format,
			Checksum:   r.Checksum,
			Duration:   r.Duration,
			TrackCount: r.TrackCount,
			Protocols:  nonNilSlice(r.Protocols),
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]library.SearchResult, error) {
	return s.db.Search(query, limit)
}

// LoadShow decodes a stored show and loads it into the playback engine.
func (s *Service) LoadShow(ctx context.Context, path string) (*ShowDetail, error) {
	detail, err := s.GetShow(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.eng.LoadTimeline(detail.Timeline); err != nil {
		return nil, err
	}
	return detail, nil
}

// CatalogFile decodes data and upserts it into the catalog.
// Exported so that sync and the watcher path can reuse it.
func (s *Service) CatalogFile(path string, data []byte) error {
	tl, err := timeline.Decode(path, data)
	if err != nil {
		return err
	}
	protoSet := map[string]struct{}{}
	body := tl.Name
	for _, tr := range tl.Tracks {
		protoSet[string(tr.Protocol)] = struct{}{}
		if tr.Name != "" {
			body += " " + tr.Name
		}
	}
	protocols := make([]string, 0, len(protoSet))
	for p := range protoSet {
		protocols = append(protocols, p)
	}
	return s.db.UpsertShow(library.ShowRow{
		Path:       path,
		Name:       tl.Name,
		Format:     timeline.Format(path),
		Checksum:   checksum.Sum(data),
		Duration:   tl.Duration(),
		TrackCount: len(tl.Tracks),
		Protocols:  protocols,
		UpdatedAt:  time.Now(),
	}, body)
}

// buildDetail constructs a ShowDetail from raw bytes without re-reading
// the file.
func (s *Service) buildDetail(path string, data []byte) (*ShowDetail, error) {
	tl, err := timeline.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return &ShowDetail{
		Path:      path,
		Name:      tl.Name,
		Format:    timeline.Format(path),
		Checksum:  checksum.Sum(data),
		Duration:  tl.Duration(),
		Timeline:  tl,
		UpdatedAt: time.Now(),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
