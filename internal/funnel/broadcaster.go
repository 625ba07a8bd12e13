package funnel

import "sync"

// Broadcaster fans session snapshots out to watchers in this process.
// Slow watchers only ever see the latest snapshot.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan *Session]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan *Session]struct{})}
}

// Subscribe registers a watcher for id. The returned func unsubscribes.
func (b *Broadcaster) Subscribe(id string) (<-chan *Session, func()) {
	ch := make(chan *Session, 1)
	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan *Session]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		})
	}
}

// Publish delivers s to every watcher of s.ID.
func (b *Broadcaster) Publish(s *Session) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[s.ID] {
		offer(ch, s.Clone())
	}
}

// prime hands the first snapshot to one new watcher. A newer snapshot already
// queued by Publish wins.
func (b *Broadcaster) prime(ch <-chan *Session, s *Session) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[s.ID] {
		if sub != ch {
			continue
		}
		select {
		case queued := <-sub:
			if queued.Revision > s.Revision {
				s = queued
			}
		default:
		}
		offer(sub, s.Clone())
		return
	}
}

// offer queues snapshot, replacing an unread older one.
func offer(ch chan *Session, snapshot *Session) {
	select {
	case ch <- snapshot:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}

// Close ends every watch of id.
func (b *Broadcaster) Close(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[id] {
		close(ch)
	}
	delete(b.subs, id)
}

// Watchers returns the number of watchers of id.
func (b *Broadcaster) Watchers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}
