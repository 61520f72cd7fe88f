package library

// Catalog defines the interface for show catalog operations. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type Catalog interface {
	UpsertShow(row ShowRow, body string) error
	DeleteShow(path string) error
	GetChecksum(path string) (string, error)
	GetShow(path string) (*ShowRow, error)
	ListShows(limit, offset int, protocol, sort string) ([]ShowRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
