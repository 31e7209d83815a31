package descriptor

import "github.com/cockroachdb/errors"

// Config sizes descriptor pools.
type Config struct {
	// FirstChunkSize is the number of slots in the first chunk.
	FirstChunkSize uint32

	// VariableSizedChunkCount is the number of chunks that double in size.
	// Chunks after these have FirstChunkSize << VariableSizedChunkCount slots.
	VariableSizedChunkCount uint32

	// MaxFramesInFlight is how many frames a released slot stays reserved.
	MaxFramesInFlight uint64
}

// DefaultConfig returns the default pool sizing.
func DefaultConfig() Config {
	return Config{
		FirstChunkSize:          4,
		VariableSizedChunkCount: 4,
		MaxFramesInFlight:       2,
	}
}

// Validate reports configuration values the pool cannot work with.
func (c Config) Validate() error {
	if c.FirstChunkSize == 0 {
		return errors.New("descriptor: FirstChunkSize must be positive")
	}
	if c.VariableSizedChunkCount > 16 {
		return errors.Newf("descriptor: VariableSizedChunkCount %d too large", c.VariableSizedChunkCount)
	}
	return nil
}

// chunkSize returns the slot count of chunk i.
func (c Config) chunkSize(i int) uint32 {
	return c.FirstChunkSize << min(uint32(i), c.VariableSizedChunkCount)
}

// chunkIndex maps a slot to the chunk holding it. It walks the same
// schedule as chunkSize.
func (c Config) chunkIndex(slot uint32) int {
	rem := slot
	for i := 0; i < int(c.VariableSizedChunkCount); i++ {
		size := c.chunkSize(i)
		if rem < size {
			return i
		}
		rem -= size
	}
	return int(c.VariableSizedChunkCount) + int(rem/c.chunkSize(int(c.VariableSizedChunkCount)))
}
