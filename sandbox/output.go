package sandbox

import (
	"bytes"
	"sync"
)

const truncatedMarker = "\n[output truncated]"

// LimitedWriter buffers at most limit bytes and silently discards the rest,
// so a chatty program can neither exhaust host memory nor block on a full
// pipe.
type LimitedWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
}

// NewLimitedWriter creates a new LimitedWriter
func NewLimitedWriter(limit int64) *LimitedWriter {
	return &LimitedWriter{limit: limit}
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	remaining := lw.limit - int64(lw.buf.Len())
	if remaining <= 0 {
		if len(p) > 0 {
			lw.exceeded = true
		}
		return len(p), nil
	}

	if int64(len(p)) > remaining {
		lw.buf.Write(p[:remaining])
		lw.exceeded = true
		return len(p), nil
	}

	return lw.buf.Write(p)
}

// Exceeded reports whether any output was dropped
func (lw *LimitedWriter) Exceeded() bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.exceeded
}

// String returns the buffered output, marked when it was truncated
func (lw *LimitedWriter) String() string {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.exceeded {
		return lw.buf.String() + truncatedMarker
	}
	return lw.buf.String()
}
