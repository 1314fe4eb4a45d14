package index

// KeyIndex defines the persistence operations used by the key service.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type KeyIndex interface {
	InsertCalibration(c CalibrationRow, keys []KeyRow) error
	LatestCalibration() (*CalibrationRow, []KeyRow, error)
	RecordFrame(f FrameRow, events []EventRow) error
	FrameChecksum(name string) (string, error)
	FrameChecksums() (map[string]string, error)
	DeleteFrame(name string) error
	ListEvents(filter EventFilter) ([]EventRow, int, error)
	Close() error
}

// Verify *DB satisfies KeyIndex at compile time.
var _ KeyIndex = (*DB)(nil)
