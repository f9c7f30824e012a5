package shardmanager

import (
	"context"

	"github.com/shardmesh/cluster/internal/assignment"
	"github.com/shardmesh/cluster/internal/httpjson"
	"github.com/shardmesh/cluster/internal/identity"
)

// HTTPClient is a Client implementation dialing a remote ShardManager
// process over HTTP, used by every pod in a multi-pod deployment.
type HTTPClient struct {
	Addr string // host:port of the ShardManager process.
}

// NewHTTPClient returns a Client dialing the ShardManager at addr.
func NewHTTPClient(addr string) *HTTPClient {
	return &HTTPClient{Addr: addr}
}

type podRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (c *HTTPClient) post(ctx context.Context, path string, pod identity.PodAddress) error {
	req := podRequest{Host: pod.Host, Port: pod.Port}
	return httpjson.PostJSON(ctx, "http://"+c.Addr+path, req, nil)
}

func (c *HTTPClient) Register(ctx context.Context, pod identity.PodAddress) error {
	return c.post(ctx, "/pods", pod)
}

func (c *HTTPClient) Unregister(ctx context.Context, pod identity.PodAddress) error {
	return c.post(ctx, "/pods/unregister", pod)
}

func (c *HTTPClient) NotifyUnhealthyPod(ctx context.Context, pod identity.PodAddress) error {
	return c.post(ctx, "/pods/unhealthy", pod)
}

type wireAssignment struct {
	ShardID int    `json:"shardId"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

func (c *HTTPClient) GetAssignments(ctx context.Context) (assignment.Map, error) {
	var entries []wireAssignment
	if err := httpjson.GetJSON(ctx, "http://"+c.Addr+"/assignments", &entries); err != nil {
		return nil, err
	}

	m := make(assignment.Map, len(entries))
	for _, e := range entries {
		m[identity.ShardID(e.ShardID)] = identity.PodAddress{Host: e.Host, Port: e.Port}
	}
	return m, nil
}
