// Package sse implements a Server-Sent Events broker that tells browsers
// when the dataset was reloaded and their result pages are stale.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	EventDatasetSynced        = "dataset.synced"
	EventSelectionInvalidated = "selection.invalidated"
)

// clientBuffer is the number of frames queued per client before new ones
// are dropped for it.
const clientBuffer = 64

// heartbeatInterval is how often idle streams get a comment line.
var heartbeatInterval = 25 * time.Second

// SyncEvent is the payload of dataset.synced: the files one reload touched.
type SyncEvent struct {
	Imported []string `json:"imported"`
	Removed  []string `json:"removed"`
	Failed   []string `json:"failed"`
}

func (e SyncEvent) changed() bool {
	return len(e.Imported) > 0 || len(e.Removed) > 0
}

// Broker fans dataset events out to connected browsers.
//
// A single goroutine owns the client set, the event sequence and the
// invalidation throttle; the public methods talk to it over channels.
// selection.invalidated is sent at most once per throttle interval; a
// reload inside the interval is announced when the interval ends.
type Broker struct {
	throttle time.Duration

	join    chan membership
	leave   chan membership
	syncs   chan SyncEvent
	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	clients atomic.Int64
}

// membership is a join or leave request; done is closed once the
// client set reflects it.
type membership struct {
	ch   chan []byte
	done chan struct{}
}

// NewBroker starts a broker. A non-positive throttle defaults to 2s.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		throttle: throttle,
		join:     make(chan membership),
		leave:    make(chan membership),
		syncs:    make(chan SyncEvent, 16),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastSent  time.Time
		deferred  *time.Timer
		deferredC <-chan time.Time
	)

	send := func(typ string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			slog.Error("sse: encode event", slog.String("type", typ), slog.String("error", err.Error()))
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, typ, payload))
		for ch := range clients {
			select {
			case ch <- frame:
			default:
			}
		}
	}
	invalidate := func() {
		lastSent = time.Now()
		send(EventSelectionInvalidated, struct{}{})
	}

	for {
		select {
		case <-b.stop:
			if deferred != nil {
				deferred.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			b.clients.Store(0)
			return

		case m := <-b.join:
			clients[m.ch] = struct{}{}
			b.clients.Store(int64(len(clients)))
			close(m.done)

		case m := <-b.leave:
			if _, ok := clients[m.ch]; ok {
				delete(clients, m.ch)
				close(m.ch)
			}
			b.clients.Store(int64(len(clients)))
			close(m.done)

		case ev := <-b.syncs:
			send(EventDatasetSynced, ev)
			if !ev.changed() || deferred != nil {
				continue
			}
			if wait := b.throttle - time.Since(lastSent); wait > 0 {
				deferred = time.NewTimer(wait)
				deferredC = deferred.C
				continue
			}
			invalidate()

		case <-deferredC:
			deferred, deferredC = nil, nil
			invalidate()
		}
	}
}

// Close stops the broker and closes every client stream.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	m := membership{ch: ch, done: make(chan struct{})}
	select {
	case b.join <- m:
		<-m.done
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	m := membership{ch: ch, done: make(chan struct{})}
	select {
	case b.leave <- m:
		<-m.done
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return int(b.clients.Load())
}

// PublishSync announces a reload. Reloads that imported or removed files
// also invalidate the clients' selections.
func (b *Broker) PublishSync(ev SyncEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.syncs <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", b.throttle.Milliseconds())
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
