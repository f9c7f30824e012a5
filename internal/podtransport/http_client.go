package podtransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/httpjson"
	"github.com/shardmesh/cluster/internal/identity"
)

// HTTPPods implements Pods over plain HTTP, dialing each pod's RPC
// surface directly. It serializes Send calls per destination through a
// sync.Map of mutexes so ordering from a single caller goroutine is
// preserved even though the underlying transport has no notion of
// per-destination sessions.
type HTTPPods struct {
	sendLocks sync.Map // identity.PodAddress -> *sync.Mutex
}

// NewHTTPPods returns a Pods/PodsHealth implementation dialing peers
// directly over HTTP.
func NewHTTPPods() *HTTPPods {
	return &HTTPPods{}
}

func (p *HTTPPods) lockFor(pod identity.PodAddress) *sync.Mutex {
	lock, _ := p.sendLocks.LoadOrStore(pod, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func podURL(pod identity.PodAddress, path string) string {
	return fmt.Sprintf("http://%s%s", pod.String(), path)
}

// Send POSTs env to pod's envelope endpoint. Calls for the same pod made
// from a single goroutine are serialized so they arrive in program order.
func (p *HTTPPods) Send(ctx context.Context, pod identity.PodAddress, env envelope.Envelope) error {
	lock := p.lockFor(pod)
	lock.Lock()
	defer lock.Unlock()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding envelope for %s: %v", identity.ErrMalformedMessage, pod, err)
	}

	if err := httpjson.PostJSON(ctx, podURL(pod, "/internal/envelopes"), json.RawMessage(body), nil); err != nil {
		return fmt.Errorf("%w: %s: %v", identity.ErrPodUnavailable, pod, err)
	}
	return nil
}

// Ping GETs pod's health endpoint.
func (p *HTTPPods) Ping(ctx context.Context, pod identity.PodAddress) error {
	if err := httpjson.GetJSON(ctx, podURL(pod, "/health"), nil); err != nil {
		return fmt.Errorf("%w: %s: %v", identity.ErrPodUnavailable, pod, err)
	}
	return nil
}

// Notify POSTs the encoded event to pod's event endpoint.
func (p *HTTPPods) Notify(ctx context.Context, pod identity.PodAddress, ev events.Event) error {
	raw, err := events.Encode(ev)
	if err != nil {
		return fmt.Errorf("podtransport: encoding event for %s: %w", pod, err)
	}

	if err := httpjson.PostJSON(ctx, podURL(pod, "/internal/events"), json.RawMessage(raw), nil); err != nil {
		return fmt.Errorf("%w: %s: %v", identity.ErrPodUnavailable, pod, err)
	}
	return nil
}

// IsAlive probes pod once and reports whether it answered successfully.
// It never returns an error: an unreachable pod is simply not alive.
func (p *HTTPPods) IsAlive(ctx context.Context, pod identity.PodAddress) bool {
	return httpjson.GetJSON(ctx, podURL(pod, "/health"), nil) == nil
}
