package index

// TaskIndex defines the interface for task indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type TaskIndex interface {
	UpsertTask(row TaskRow) error
	DeleteTask(id string) error
	Search(query string, limit int) ([]SearchResult, error)
	AllIDs() (map[string]struct{}, error)
	Close() error
}

// Verify *DB satisfies TaskIndex at compile time.
var _ TaskIndex = (*DB)(nil)
