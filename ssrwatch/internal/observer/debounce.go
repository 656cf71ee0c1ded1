package observer

import (
	"time"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// debounceConfig controls mutation batching toward sinks.
type debounceConfig struct {
	// Window is the debounce time. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate.
	// Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer buffers mutation records and emits them as one batch when the
// window expires or the buffer fills. Structural records are never merged:
// every insert and remove is significant to classification auditing.
type debouncer struct {
	cfg     debounceConfig
	records []mutation.Record
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]mutation.Record)
}

func newDebouncer(cfg debounceConfig, flushFn func([]mutation.Record)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		records: make([]mutation.Record, 0, cfg.MaxBuffer),
		flushFn: flushFn,
	}
}

// add pushes a record into the buffer. Returns true when the buffer filled
// and an immediate flush was triggered.
func (d *debouncer) add(rec mutation.Record) bool {
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC is the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush emits the buffered records and resets the buffer and timer.
func (d *debouncer) flush() {
	if len(d.records) == 0 {
		return
	}

	out := make([]mutation.Record, len(d.records))
	copy(out, d.records)
	d.flushFn(out)

	d.records = d.records[:0]
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
