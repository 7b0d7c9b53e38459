package listing

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"github.com/hitoshi/photolib/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- モック ---

// spyCollector は呼び出し回数だけを記録するMetricsCollector。
type spyCollector struct {
	metrics.Nop

	mu            sync.Mutex
	pages         int
	fallbackPages int
	recovered     int
	signFailures  int
}

func (c *spyCollector) RecordPageServed(usedFallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages++
	if usedFallback {
		c.fallbackPages++
	}
}

func (c *spyCollector) RecordFallbackRecovered(rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovered += rows
}

func (c *spyCollector) RecordSignFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signFailures++
}

// compile-time interface check
var _ metrics.MetricsCollector = (*spyCollector)(nil)

