package observer

import (
	"encoding/json"
	"io"
	"log"
	"sync"

	"mineopoly.ai/internal/observerproto"
	"mineopoly.ai/internal/sim/match"
)

// Hub fans round events out to websocket observers.
// Slow observers lose older TURN frames, never the newest.
type Hub struct {
	log *log.Logger

	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscriber
	current string
	boots   map[string][]byte
	order   []string
}

type subscriber struct {
	roundID string
	out     chan []byte
}

// keepRounds bounds how many finished rounds keep their bootstrap for late subscribers.
const keepRounds = 16

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		log:   logger,
		subs:  map[uint64]*subscriber{},
		boots: map[string][]byte{},
	}
}

// Subscribe registers an observer. An empty roundID follows the live round.
// The bootstrap of the followed round, if known, is queued immediately.
func (h *Hub) Subscribe(roundID string, buf int) (id uint64, out <-chan []byte) {
	if buf <= 0 {
		buf = 64
	}
	s := &subscriber{roundID: roundID, out: make(chan []byte, buf)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id = h.nextID
	h.subs[id] = s
	want := roundID
	if want == "" {
		want = h.current
	}
	if b, ok := h.boots[want]; ok {
		sendLatest(s.out, b)
	}
	return id, s.out
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Bootstrap returns the live round's bootstrap message, if any.
func (h *Hub) Bootstrap() (observerproto.BootstrapMsg, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var m observerproto.BootstrapMsg
	b, ok := h.boots[h.current]
	if !ok {
		return m, false
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, false
	}
	return m, true
}

func (h *Hub) Begin(boot observerproto.BootstrapMsg) {
	b, err := json.Marshal(boot)
	if err != nil {
		h.log.Printf("observer: marshal bootstrap: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = boot.RoundID
	h.boots[boot.RoundID] = b
	h.order = append(h.order, boot.RoundID)
	if len(h.order) > keepRounds {
		delete(h.boots, h.order[0])
		h.order = h.order[1:]
	}
	h.broadcastLocked(boot.RoundID, b)
}

func (h *Hub) Publish(m observerproto.TurnMsg) { h.broadcast(m.RoundID, m) }

func (h *Hub) End(m observerproto.EndMsg) { h.broadcast(m.RoundID, m) }

// Feed relays a round's snapshot sink until it is closed.
func (h *Hub) Feed(roundID string, snaps <-chan match.TurnSnapshot) {
	for s := range snaps {
		h.Publish(observerproto.FromSnapshot(roundID, s))
	}
}

func (h *Hub) broadcast(roundID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("observer: marshal: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(roundID, b)
}

func (h *Hub) broadcastLocked(roundID string, b []byte) {
	for _, s := range h.subs {
		if s.roundID != "" && s.roundID != roundID {
			continue
		}
		if s.roundID == "" && roundID != h.current {
			continue
		}
		sendLatest(s.out, b)
	}
}

func sendLatest(ch chan []byte, msg []byte) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}
