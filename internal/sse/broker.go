// Package sse streams key transitions to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is one named SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeKeyPressed       = "key.pressed"
	TypeKeyReleased      = "key.released"
	TypeOctaveCalibrated = "octave.calibrated"
	TypeOctaveUpdated    = "octave.updated"
)

const clientBuffer = 64

var octaveUpdated = []byte("event: " + TypeOctaveUpdated + "\ndata: {}\n\n")

// message is an encoded frame on its way to the loop. Key messages may be
// followed by an octave.updated hint.
type message struct {
	frame []byte
	key   bool
}

// Broker fans encoded events out to subscribers. The client set and the
// octave.updated throttle belong to the loop goroutine.
type Broker struct {
	throttle time.Duration

	join  chan chan []byte
	leave chan chan []byte
	in    chan message
	count chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker that emits octave.updated at most once per throttle.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 250 * time.Millisecond
	}
	b := &Broker{
		throttle: throttle,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		in:       make(chan message, 256),
		count:    make(chan chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

// fanOut never blocks; slow clients miss frames.
func fanOut(clients map[chan []byte]struct{}, frame []byte) {
	for ch := range clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (b *Broker) loop() {
	defer close(b.done)

	clients := make(map[chan []byte]struct{})
	var lastOctave time.Time
	for {
		select {
		case <-b.quit:
			for ch := range clients {
				close(ch)
			}
			return
		case ch := <-b.join:
			clients[ch] = struct{}{}
		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}
		case m := <-b.in:
			fanOut(clients, m.frame)
			if m.key && time.Since(lastOctave) >= b.throttle {
				lastOctave = time.Now()
				fanOut(clients, octaveUpdated)
			}
		case reply := <-b.count:
			reply <- len(clients)
		}
	}
}

func (b *Broker) send(m message) {
	if b.closed.Load() {
		return
	}
	select {
	case b.in <- m:
	case <-b.done:
	}
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts event. Events whose data cannot be encoded are dropped.
func (b *Broker) Publish(event Event) {
	frame, err := encode(event)
	if err != nil {
		return
	}
	b.send(message{frame: frame})
}

// PublishKeyEvent broadcasts a key or calibration event followed by a
// throttled octave.updated. Unknown kinds are dropped.
func (b *Broker) PublishKeyEvent(kind string, data any) {
	switch kind {
	case TypeKeyPressed, TypeKeyReleased, TypeOctaveCalibrated:
	default:
		return
	}
	frame, err := encode(Event{Type: kind, Data: data})
	if err != nil {
		return
	}
	b.send(message{frame: frame, key: true})
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
