package signaling

import (
	"sync"

	"github.com/dmitrijs2005/safeshare/internal/proto"
)

// Conn is one connected signaling client, whatever the transport.
type Conn interface {
	ID() string
	Send(env *proto.Envelope) error
}

// Hub groups connections by rendezvous code. Membership is the only state
// it keeps; delivery happens outside the lock.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[string]Conn
	member map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		groups: make(map[string]map[string]Conn),
		member: make(map[string]map[string]struct{}),
	}
}

// Join adds c to the group for code. Joining twice is a no-op.
func (h *Hub) Join(code string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[code]
	if !ok {
		g = make(map[string]Conn)
		h.groups[code] = g
	}
	g[c.ID()] = c

	m, ok := h.member[c.ID()]
	if !ok {
		m = make(map[string]struct{})
		h.member[c.ID()] = m
	}
	m[code] = struct{}{}
}

func (h *Hub) Leave(code string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(code, c.ID())
}

// LeaveAll removes c from every group, as on disconnect.
func (h *Hub) LeaveAll(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for code := range h.member[c.ID()] {
		h.leaveLocked(code, c.ID())
	}
}

// Dissolve removes every member from the group for code.
func (h *Hub) Dissolve(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.groups[code] {
		h.leaveLocked(code, id)
	}
}

func (h *Hub) leaveLocked(code, id string) {
	if g, ok := h.groups[code]; ok {
		delete(g, id)
		if len(g) == 0 {
			delete(h.groups, code)
		}
	}
	if m, ok := h.member[id]; ok {
		delete(m, code)
		if len(m) == 0 {
			delete(h.member, id)
		}
	}
}

// Publish sends env to every member of the group except from, which may be
// nil. It returns the number of successful deliveries.
func (h *Hub) Publish(code string, from Conn, env *proto.Envelope) int {
	h.mu.Lock()
	targets := make([]Conn, 0, len(h.groups[code]))
	for id, c := range h.groups[code] {
		if from != nil && id == from.ID() {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(env); err == nil {
			sent++
		}
	}
	return sent
}

// Size returns the number of connections in the group for code.
func (h *Hub) Size(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[code])
}

// Groups returns how many codes currently have members.
func (h *Hub) Groups() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups)
}
