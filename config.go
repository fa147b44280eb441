package massivepoints

const (
	// DefaultBlockSize is the number of items staged per block during
	// bulk insertion.
	DefaultBlockSize = 100_000

	// DefaultMaxNodePoints is the leaf capacity providers use when
	// none is given.
	DefaultMaxNodePoints = 65536
)

// BulkInsertConfig tunes InsertPoints.
type BulkInsertConfig struct {
	// BlockSize is the number of items buffered before each core
	// bulk insertion pass. Values below 1 select DefaultBlockSize.
	BlockSize int
}

// DefaultBulkInsertConfig returns the default bulk insertion tuning.
func DefaultBulkInsertConfig() BulkInsertConfig {
	return BulkInsertConfig{BlockSize: DefaultBlockSize}
}

// RemoveConfig tunes RemovePoint and RemoveBound.
type RemoveConfig struct {
	// Shrink collapses internal nodes whose total descendant count
	// drops below the leaf capacity back into single leaves. The
	// non-shrinking path is strictly cheaper.
	Shrink bool
}

// DefaultRemoveConfig returns the default removal tuning, without
// shrinking.
func DefaultRemoveConfig() RemoveConfig {
	return RemoveConfig{}
}
