package reminder

import (
	"sync"
	"testing"
	"time"
)

func TestBookPutReplacesActive(t *testing.T) {
	t.Parallel()

	b := NewBook()
	first := New("t1", "x", base.Add(2*time.Hour), time.Hour, base)
	if old := b.Put(first, base); old != nil {
		t.Fatalf("unexpected replaced record")
	}
	second := New("t1", "x", base.Add(3*time.Hour), time.Hour, base)
	old := b.Put(second, base)
	if old != first || first.State != Cancelled {
		t.Fatalf("previous reminder should be cancelled, got %+v", first)
	}
	got, ok := b.Active("t1")
	if !ok || got != second {
		t.Fatalf("Active returned %+v", got)
	}
	if b.Len() != 1 {
		t.Fatalf("len=%d", b.Len())
	}
}

func TestBookQueriesOrderedByFireAt(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.Put(New("late", "x", base.Add(5*time.Hour), time.Hour, base), base)
	b.Put(New("early", "x", base.Add(2*time.Hour), time.Hour, base), base)
	m := New("gone", "x", base.Add(-3*time.Hour), time.Hour, base)
	m.MarkMissed(base, time.Hour)
	b.Put(m, base)

	p := b.Pending()
	if len(p) != 2 || p[0].TaskID != "early" || p[1].TaskID != "late" {
		t.Fatalf("pending=%v", ids(p))
	}
	if ms := b.Missed(); len(ms) != 1 || ms[0].TaskID != "gone" {
		t.Fatalf("missed=%v", ids(ms))
	}
	if d := b.DueBy(base.Add(time.Hour)); len(d) != 1 || d[0].TaskID != "early" {
		t.Fatalf("due=%v", ids(d))
	}
	if all := b.All(); len(all) != 3 || all[0].TaskID != "gone" {
		t.Fatalf("all=%v", ids(all))
	}
}

func TestBookCancelAndPrune(t *testing.T) {
	t.Parallel()

	b := NewBook()
	b.Put(New("t1", "x", base.Add(2*time.Hour), time.Hour, base), base)
	b.Put(New("t2", "x", base.Add(2*time.Hour), time.Hour, base), base)

	if _, ok := b.Cancel("t1", base); !ok {
		t.Fatalf("cancel t1 failed")
	}
	if _, ok := b.Cancel("t1", base); ok {
		t.Fatalf("second cancel must be a no-op")
	}
	if _, ok := b.Cancel("missing", base); ok {
		t.Fatalf("cancel of unknown task must be a no-op")
	}

	if n := b.Prune(base, nil); n != 0 {
		t.Fatalf("nothing is older than cutoff, pruned %d", n)
	}
	if n := b.Prune(base.Add(time.Minute), nil); n != 1 {
		t.Fatalf("pruned %d want 1", n)
	}
	if _, ok := b.Get("t1"); ok {
		t.Fatalf("t1 should be pruned")
	}
	if _, ok := b.Get("t2"); !ok {
		t.Fatalf("pending t2 must survive prune")
	}
}

func TestBookPruneKeep(t *testing.T) {
	t.Parallel()

	b := NewBook()
	for _, id := range []string{"open", "done"} {
		r := New(id, "x", base.Add(time.Hour), time.Hour, base)
		b.Put(r, base)
		r.Trigger(base)
	}
	keepOpen := func(r *Reminder) bool { return r.TaskID == "open" }
	if n := b.Prune(base.Add(time.Minute), keepOpen); n != 1 {
		t.Fatalf("pruned %d want 1", n)
	}
	if r, ok := b.Get("open"); !ok || r.State != Triggered {
		t.Fatalf("kept record=%+v ok=%v", r, ok)
	}
	if _, ok := b.Get("done"); ok {
		t.Fatalf("done should be pruned")
	}
}

func TestGuardSerializesAccess(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.Do(func(b *Book) {
				id := string(rune('a' + i%5))
				b.Put(New(id, "x", base.Add(time.Duration(i)*time.Minute), 0, base), base)
			})
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("len=%d want 5", len(snap))
	}
	active := 0
	for _, r := range snap {
		if r.State.Active() {
			active++
		}
	}
	if active != 5 {
		t.Fatalf("each task must keep exactly one active reminder, got %d", active)
	}
}

func ids(rs []*Reminder) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.TaskID)
	}
	return out
}
