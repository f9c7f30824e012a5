package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardmesh/cluster/internal/identity"
)

func TestStreamDeliversToAllSubscribers(t *testing.T) {
	s := NewStream()
	ch1, unsub1 := s.Subscribe()
	ch2, unsub2 := s.Subscribe()
	defer unsub1()
	defer unsub2()

	s.Publish(PodRegistered{Pod: identity.PodAddress{Host: "a", Port: 1}})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			reg, ok := ev.(PodRegistered)
			require.True(t, ok)
			assert.Equal(t, "a", reg.Pod.Host)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestStreamLateSubscriberMissesEarlierEvents(t *testing.T) {
	s := NewStream()
	s.Publish(PodRegistered{Pod: identity.PodAddress{Host: "a", Port: 1}})

	ch, unsub := s.Subscribe()
	defer unsub()

	select {
	case <-ch:
		t.Fatal("late subscriber should not see events published before it subscribed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamUnsubscribeClosesChannel(t *testing.T) {
	s := NewStream()
	ch, unsub := s.Subscribe()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}
