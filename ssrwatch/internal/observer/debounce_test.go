package observer

import (
	"testing"
	"time"

	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

func TestDebouncerFlushOnMaxBuffer(t *testing.T) {
	var flushed [][]mutation.Record
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 3},
		func(recs []mutation.Record) { flushed = append(flushed, recs) })

	d.add(mutation.Record{Op: mutation.OpInsert, XPath: "/html/body/a"})
	d.add(mutation.Record{Op: mutation.OpInsert, XPath: "/html/body/b"})
	if len(flushed) != 0 {
		t.Fatal("flushed before buffer full")
	}

	full := d.add(mutation.Record{Op: mutation.OpInsert, XPath: "/html/body/c"})
	if !full {
		t.Error("add should report buffer-full flush")
	}
	if len(flushed) != 1 || len(flushed[0]) != 3 {
		t.Fatalf("flushed = %d batches, want 1 batch of 3", len(flushed))
	}
}

func TestDebouncerPreservesOrder(t *testing.T) {
	var got []string
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 100},
		func(recs []mutation.Record) {
			for _, r := range recs {
				got = append(got, r.XPath)
			}
		})

	paths := []string{"/html/body/div[1]", "/html/body/div[2]", "/html/body/div[3]"}
	for _, p := range paths {
		d.add(mutation.Record{Op: mutation.OpInsert, XPath: p})
	}
	d.flush()

	if len(got) != len(paths) {
		t.Fatalf("got %d records, want %d", len(got), len(paths))
	}
	for i, p := range paths {
		if got[i] != p {
			t.Errorf("record %d = %q, want %q", i, got[i], p)
		}
	}
}

func TestDebouncerEmptyFlushIsNoop(t *testing.T) {
	calls := 0
	d := newDebouncer(debounceConfig{}, func([]mutation.Record) { calls++ })

	d.flush()
	d.flush()
	if calls != 0 {
		t.Errorf("flush of empty buffer called flushFn %d times", calls)
	}
}

func TestDebouncerResetsAfterFlush(t *testing.T) {
	var flushed [][]mutation.Record
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 2},
		func(recs []mutation.Record) { flushed = append(flushed, recs) })

	d.add(mutation.Record{Op: mutation.OpInsert})
	d.add(mutation.Record{Op: mutation.OpInsert})
	d.add(mutation.Record{Op: mutation.OpRemove})
	d.flush()

	if len(flushed) != 2 {
		t.Fatalf("flushed = %d batches, want 2", len(flushed))
	}
	if len(flushed[1]) != 1 || flushed[1][0].Op != mutation.OpRemove {
		t.Errorf("second batch = %+v", flushed[1])
	}
}
