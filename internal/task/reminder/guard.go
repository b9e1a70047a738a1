package reminder

import "sync"

// Guard serializes every read and write of the reminder book, and the task
// completion checks made alongside them, between the foreground lifecycle
// hooks and the background scheduler tick.
//
// fn must not block on anything but in-process work; notifications are sent
// after Do returns.
type Guard struct {
	mu   sync.Mutex
	book *Book
}

func NewGuard() *Guard { return &Guard{book: NewBook()} }

func (g *Guard) Do(fn func(b *Book)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.book)
}

// Snapshot returns copies of all records.
func (g *Guard) Snapshot() []Reminder {
	var out []Reminder
	g.Do(func(b *Book) {
		all := b.All()
		out = make([]Reminder, 0, len(all))
		for _, r := range all {
			out = append(out, *r)
		}
	})
	return out
}
