package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const ringSize = 60

// Collector tracks sync statistics across all sessions using lock-free
// atomic counters.
type Collector struct {
	sessionsStarted   atomic.Int64
	sessionsCompleted atomic.Int64
	sessionsFailed    atomic.Int64
	filesSent         atomic.Int64
	filesReceived     atomic.Int64
	filesRejected     atomic.Int64
	bytesSent         atomic.Int64
	bytesReceived     atomic.Int64
	startTime         time.Time

	// Ring buffer of per-tick deltas, written only by Tick.
	mu        sync.Mutex
	sentRing  [ringSize]int64
	recvRing  [ringSize]int64
	ringIdx   int
	ringCount int // samples written, capped at ringSize
	lastSent  int64
	lastRecv  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	FilesSent         int64
	FilesReceived     int64
	FilesRejected     int64
	BytesSent         int64
	BytesReceived     int64
	Elapsed           time.Duration
}

func (c *Collector) AddSessionsStarted(n int64)   { c.sessionsStarted.Add(n) }
func (c *Collector) AddSessionsCompleted(n int64) { c.sessionsCompleted.Add(n) }
func (c *Collector) AddSessionsFailed(n int64)    { c.sessionsFailed.Add(n) }
func (c *Collector) AddFilesSent(n int64)         { c.filesSent.Add(n) }
func (c *Collector) AddFilesReceived(n int64)     { c.filesReceived.Add(n) }
func (c *Collector) AddFilesRejected(n int64)     { c.filesRejected.Add(n) }
func (c *Collector) AddBytesSent(n int64)         { c.bytesSent.Add(n) }
func (c *Collector) AddBytesReceived(n int64)     { c.bytesReceived.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SessionsStarted:   c.sessionsStarted.Load(),
		SessionsCompleted: c.sessionsCompleted.Load(),
		SessionsFailed:    c.sessionsFailed.Load(),
		FilesSent:         c.filesSent.Load(),
		FilesReceived:     c.filesReceived.Load(),
		FilesRejected:     c.filesRejected.Load(),
		BytesSent:         c.bytesSent.Load(),
		BytesReceived:     c.bytesReceived.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick records the byte deltas since the previous Tick. Called once per
// second by the status reporter.
func (c *Collector) Tick() {
	sent := c.bytesSent.Load()
	recv := c.bytesReceived.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sentRing[c.ringIdx] = sent - c.lastSent
	c.recvRing[c.ringIdx] = recv - c.lastRecv
	c.lastSent = sent
	c.lastRecv = recv

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSendSpeed returns average sent bytes/sec over the last n ticks.
func (c *Collector) RollingSendSpeed(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.sentRing[:], n)
}

// RollingReceiveSpeed returns average received bytes/sec over the last n
// ticks.
func (c *Collector) RollingReceiveSpeed(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.recvRing[:], n)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"sessions=%d/%d failed=%d sent=%d (%s) received=%d (%s) rejected=%d",
		s.SessionsCompleted, s.SessionsStarted, s.SessionsFailed,
		s.FilesSent, FormatBytes(s.BytesSent),
		s.FilesReceived, FormatBytes(s.BytesReceived),
		s.FilesRejected,
	)
}

// FormatBytes returns a human-readable byte count in IEC units.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// FormatRate returns a human-readable transfer rate.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}
