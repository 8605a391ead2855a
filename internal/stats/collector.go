package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/ferry/internal/units"
)

const ringSize = 60

// Collector tracks run statistics using lock-free atomic counters.
type Collector struct {
	chunksTotal       atomic.Int64
	chunksCompleted   atomic.Int64 // completed during this invocation
	chunksSkipped     atomic.Int64 // already done at startup
	filesCopied       atomic.Int64
	filesFailed       atomic.Int64
	bytesCopied       atomic.Int64
	retries           atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
	startTime         time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per tick
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ChunksTotal       int64
	ChunksCompleted   int64
	ChunksSkipped     int64
	FilesCopied       int64
	FilesFailed       int64
	BytesCopied       int64
	Retries           int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) SetChunksTotal(n int64)      { c.chunksTotal.Store(n) }
func (c *Collector) AddChunksCompleted(n int64)  { c.chunksCompleted.Add(n) }
func (c *Collector) AddChunksSkipped(n int64)    { c.chunksSkipped.Add(n) }
func (c *Collector) AddFilesCopied(n int64)      { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)      { c.filesFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)      { c.bytesCopied.Add(n) }
func (c *Collector) AddRetries(n int64)          { c.retries.Add(n) }
func (c *Collector) AddFilesVerified(n int64)    { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ChunksTotal:       c.chunksTotal.Load(),
		ChunksCompleted:   c.chunksCompleted.Load(),
		ChunksSkipped:     c.chunksSkipped.Load(),
		FilesCopied:       c.filesCopied.Load(),
		FilesFailed:       c.filesFailed.Load(),
		BytesCopied:       c.bytesCopied.Load(),
		Retries:           c.retries.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called once per second
// by the presenter.
func (c *Collector) Tick() {
	current := c.bytesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates the time left for the remaining chunks from the average
// duration of the chunks completed during this invocation. Chunks skipped
// because they were already done do not count toward the average.
func (c *Collector) ETA() time.Duration {
	completed := c.chunksCompleted.Load()
	remaining := c.chunksTotal.Load() - completed - c.chunksSkipped.Load()
	return EstimateRemaining(c.Elapsed(), completed, remaining)
}

// EstimateRemaining computes elapsed / completed * remaining. It returns 0
// when nothing has completed yet or nothing remains.
func EstimateRemaining(elapsed time.Duration, completed, remaining int64) time.Duration {
	if completed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(int64(elapsed) / completed * remaining)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"chunks=%d/%d skipped=%d files=%d failed=%d bytes=%d retries=%d",
		s.ChunksCompleted+s.ChunksSkipped, s.ChunksTotal, s.ChunksSkipped,
		s.FilesCopied, s.FilesFailed, s.BytesCopied, s.Retries,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	return units.FormatBytes(b)
}
