// Package bus implements the kernel's message bus (§4.5): a typed,
// thread-aware publish-dispatch mechanism that lets any code post a
// message to a registered handler, with delivery deferred to a single
// point per tick so handler callbacks never race a worker's frameTick.
package bus

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// HandlerID names a registered message recipient. The bus hands these
// out as opaque registration tokens at Register time.
type HandlerID uuid.UUID

// Type names a message's payload kind. Handlers switch on Type to decide
// how to interpret Payload.
type Type string

// Message is the envelope delivered to a Handler.
type Message struct {
	Type    Type
	Payload any
	From    HandlerID
}

// Handler receives messages addressed to it. Delivery always happens
// from DistributeMessages, on the calling (master) thread — never from
// inside a worker's frameTick.
type Handler interface {
	HandleMessage(Message)
}

// Bus guards its state with a mutex, so PostMessage, Register and
// Unregister may be called from any goroutine (each worker registers
// from its own goroutine at thread entry). DistributeMessages is called
// only from the master thread, matching §4.5 and §5's "delivered only on
// the master" rule.
type Bus struct {
	mu       sync.Mutex
	handlers map[HandlerID]Handler
	mailbox  map[uint64][]Message
	addr     map[uint64]HandlerID
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[HandlerID]Handler),
		mailbox:  make(map[uint64][]Message),
		addr:     make(map[uint64]HandlerID),
	}
}

// Register installs h under a fresh HandlerID and returns an unregister
// function.
func (b *Bus) Register(h Handler) (HandlerID, func()) {
	id := HandlerID(uuid.New())
	b.mu.Lock()
	b.handlers[id] = h
	b.mu.Unlock()
	return id, func() { b.Unregister(id) }
}

// Unregister removes a handler and clears any messages already queued
// for it, leaving no observable trace of the registration.
func (b *Bus) Unregister(id HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	for key, addr := range b.addr {
		if addr == id {
			delete(b.mailbox, key)
			delete(b.addr, key)
		}
	}
}

func mailboxKey(to HandlerID, typ Type) uint64 {
	h := xxhash.New()
	h.Write(to[:])
	h.WriteString(string(typ))
	return h.Sum64()
}

// PostMessage queues a message for delivery at the next
// DistributeMessages call. It buffers the message even if `to` is not
// currently registered; delivery silently drops messages addressed to a
// handler that turns out to be unregistered by distribution time (§4.5,
// §7's "message addressed to dead entity").
func (b *Bus) PostMessage(to HandlerID, typ Type, payload any) {
	b.PostMessageFrom(HandlerID{}, to, typ, payload)
}

// PostMessageFrom is PostMessage with an explicit sender, used when a
// handler needs to know who addressed it (controller <-> driver
// conversations, §4.5).
func (b *Bus) PostMessageFrom(from, to HandlerID, typ Type, payload any) {
	key := mailboxKey(to, typ)
	b.mu.Lock()
	b.mailbox[key] = append(b.mailbox[key], Message{Type: typ, Payload: payload, From: from})
	b.addr[key] = to
	b.mu.Unlock()
}

// DistributeMessages delivers every buffered message to its still-live
// handler, then clears the mailboxes. It is the only delivery point the
// spec allows (§4.5); the kernel calls it once per tick, between the
// flip and macro-tick phases.
func (b *Bus) DistributeMessages() {
	b.mu.Lock()
	mailbox := b.mailbox
	addr := b.addr
	b.mailbox = make(map[uint64][]Message, len(mailbox))
	b.addr = make(map[uint64]HandlerID, len(addr))
	handlers := make(map[HandlerID]Handler, len(b.handlers))
	for id, h := range b.handlers {
		handlers[id] = h
	}
	b.mu.Unlock()

	for key, msgs := range mailbox {
		to := addr[key]
		h, ok := handlers[to]
		if !ok {
			continue // dead or never-registered recipient: drop silently
		}
		for _, m := range msgs {
			h.HandleMessage(m)
		}
	}
}

// BroadcastGroup posts the same message to every handler id a predicate
// selects, generalizing the controller-to-many-drivers command pattern
// in original_source's OnCallController.cpp (§3S).
func (b *Bus) BroadcastGroup(from HandlerID, typ Type, payload any, to func(HandlerID) bool) {
	b.mu.Lock()
	targets := make([]HandlerID, 0, len(b.handlers))
	for id := range b.handlers {
		if to(id) {
			targets = append(targets, id)
		}
	}
	b.mu.Unlock()
	for _, id := range targets {
		b.PostMessageFrom(from, id, typ, payload)
	}
}
