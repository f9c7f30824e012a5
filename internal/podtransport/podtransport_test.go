package podtransport

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
)

type fakeReceiver struct {
	healthy   bool
	envelopes []envelope.Envelope
	evs       []events.Event
	envErr    error
}

func (f *fakeReceiver) ReceiveEnvelope(env envelope.Envelope) error {
	f.envelopes = append(f.envelopes, env)
	return f.envErr
}

func (f *fakeReceiver) ReceiveEvent(ev events.Event) error {
	f.evs = append(f.evs, ev)
	return nil
}

func (f *fakeReceiver) Healthy() bool { return f.healthy }

func testPod(t *testing.T, srv *httptest.Server) identity.PodAddress {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return identity.PodAddress{Host: u.Hostname(), Port: port}
}

func TestHTTPPodsSendDeliversEnvelope(t *testing.T) {
	receiver := &fakeReceiver{healthy: true}
	srv := httptest.NewServer(Router(receiver, logrus.New()))
	defer srv.Close()

	pod := testPod(t, srv)
	client := NewHTTPPods()

	address := identity.EntityAddress{ShardID: 1, EntityType: "Counter", EntityID: "x"}
	env, err := envelope.Encode(address, stubMessage{key: "m1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Send(ctx, pod, env))

	require.Len(t, receiver.envelopes, 1)
	assert.Equal(t, address, receiver.envelopes[0].Address)
}

func TestHTTPPodsPingReportsUnavailable(t *testing.T) {
	client := NewHTTPPods()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := client.Ping(ctx, identity.PodAddress{Host: "127.0.0.1", Port: 1})
	assert.ErrorIs(t, err, identity.ErrPodUnavailable)
}

func TestHTTPPodsIsAlive(t *testing.T) {
	receiver := &fakeReceiver{healthy: true}
	srv := httptest.NewServer(Router(receiver, logrus.New()))
	defer srv.Close()

	pod := testPod(t, srv)
	client := NewHTTPPods()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, client.IsAlive(ctx, pod))

	receiver.healthy = false
	assert.False(t, client.IsAlive(ctx, pod))
}

func TestHTTPPodsNotifyDeliversEvent(t *testing.T) {
	receiver := &fakeReceiver{healthy: true}
	srv := httptest.NewServer(Router(receiver, logrus.New()))
	defer srv.Close()

	pod := testPod(t, srv)
	client := NewHTTPPods()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev := events.PodRegistered{Pod: pod}
	require.NoError(t, client.Notify(ctx, pod, ev))

	require.Len(t, receiver.evs, 1)
	assert.Equal(t, ev, receiver.evs[0])
}

type stubMessage struct {
	key string
}

func (m stubMessage) PrimaryKey() string { return m.key }
