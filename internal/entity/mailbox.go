package entity

import "github.com/shardmesh/cluster/internal/mailbox"

// Delivery pairs a durable mailbox.Entry with the Replier the entity's
// behavior uses to complete it. One Delivery is produced per message
// offered to a Mailbox.
type Delivery struct {
	Entry   mailbox.Entry
	Replier Replier
}

// Mailbox is the unbounded, single-consumer, FIFO inbox EntityManager
// creates for each live entity. It is backed by a pump goroutine rather
// than a fixed-size channel so Offer never blocks on a slow or absent
// consumer, matching the core's "entity mailboxes are unbounded" design.
type Mailbox struct {
	in   chan Delivery
	out  chan Delivery
	done chan struct{}
}

// NewMailbox returns a running Mailbox; call Shutdown to stop it.
func NewMailbox() *Mailbox {
	m := &Mailbox{
		in:   make(chan Delivery),
		out:  make(chan Delivery),
		done: make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *Mailbox) pump() {
	var queue []Delivery
	for {
		if len(queue) == 0 {
			select {
			case d := <-m.in:
				queue = append(queue, d)
			case <-m.done:
				close(m.out)
				return
			}
			continue
		}

		select {
		case d := <-m.in:
			queue = append(queue, d)
		case m.out <- queue[0]:
			queue = queue[1:]
		case <-m.done:
			close(m.out)
			return
		}
	}
}

// Offer enqueues d. It returns false if the mailbox has been shut down
// concurrently, the offer-retry condition EntityManager.Send handles by
// resolving a fresh entity state and retrying after 100ms.
func (m *Mailbox) Offer(d Delivery) bool {
	select {
	case m.in <- d:
		return true
	case <-m.done:
		return false
	}
}

// Take blocks until a Delivery is available, the mailbox is shut down
// (ok=false, the "drained" signal), or done is closed (ok=false).
func (m *Mailbox) Take(done <-chan struct{}) (Delivery, bool) {
	select {
	case d, ok := <-m.out:
		return d, ok
	case <-done:
		return Delivery{}, false
	}
}

// Shutdown stops the mailbox, unblocking any in-flight Take with the
// drained signal and failing subsequent Offers.
func (m *Mailbox) Shutdown() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
