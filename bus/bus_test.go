package bus

import "testing"

type recordingHandler struct {
	received []Message
}

func (h *recordingHandler) HandleMessage(m Message) {
	h.received = append(h.received, m)
}

func TestDistributeMessagesDeliversOnce(t *testing.T) {
	b := New()
	h := &recordingHandler{}
	id, _ := b.Register(h)

	b.PostMessage(id, "incident", 42)
	b.PostMessage(id, "incident", 43)
	if len(h.received) != 0 {
		t.Fatalf("messages must not be delivered before DistributeMessages")
	}

	b.DistributeMessages()
	if len(h.received) != 2 {
		t.Fatalf("expected 2 messages delivered, got %d", len(h.received))
	}

	b.DistributeMessages()
	if len(h.received) != 2 {
		t.Fatalf("mailbox should be empty on second distribute, got %d total", len(h.received))
	}
}

func TestUnregisterDropsQueuedMessages(t *testing.T) {
	b := New()
	h := &recordingHandler{}
	id, unregister := b.Register(h)

	b.PostMessage(id, "cmd", "hello")
	unregister()
	b.DistributeMessages()

	if len(h.received) != 0 {
		t.Fatalf("expected no delivery to unregistered handler, got %d", len(h.received))
	}
}

func TestMessageToDeadEntityDroppedSilently(t *testing.T) {
	b := New()
	h := &recordingHandler{}
	id, _ := b.Register(h)
	b.Unregister(id)

	// Posting after unregister must not panic and must simply be dropped.
	b.PostMessage(id, "cmd", "hello")
	b.DistributeMessages()
	if len(h.received) != 0 {
		t.Fatalf("expected no delivery")
	}
}

func TestBroadcastGroup(t *testing.T) {
	b := New()
	var a, c recordingHandler
	idA, _ := b.Register(&a)
	_, _ = b.Register(&c)

	b.BroadcastGroup(HandlerID{}, "stop", nil, func(id HandlerID) bool { return id == idA })
	b.DistributeMessages()

	if len(a.received) != 1 {
		t.Fatalf("expected broadcast target to receive message, got %d", len(a.received))
	}
	if len(c.received) != 0 {
		t.Fatalf("expected non-target to receive nothing, got %d", len(c.received))
	}
}
