package shardmanager

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shardmesh/cluster/internal/events"
	"github.com/shardmesh/cluster/internal/identity"
)

// Router builds the chi mux the ShardManager process serves: the pod
// registration/health API consumed by HTTPClient, plus the
// admin/observability surface (assignments, pods, event stream) a
// human operator or podctl queries.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/pods", s.handleRegister)
	r.Post("/pods/unregister", s.handleUnregister)
	r.Post("/pods/unhealthy", s.handleNotifyUnhealthy)
	r.Get("/assignments", s.handleGetAssignments)
	r.Get("/pods", s.handleListPods)
	r.Get("/events", s.handleEventStream)
	r.Post("/rebalance", s.handleRebalance)

	return r
}

func decodePod(r *http.Request) (identity.PodAddress, error) {
	var req podRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return identity.PodAddress{}, err
	}
	return identity.PodAddress{Host: req.Host, Port: req.Port}, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	pod, err := decodePod(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.Register(r.Context(), pod); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	pod, err := decodePod(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.Unregister(r.Context(), pod); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotifyUnhealthy(w http.ResponseWriter, r *http.Request) {
	pod, err := decodePod(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.NotifyUnhealthyPod(r.Context(), pod); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	m := s.GetAssignments()
	entries := make([]wireAssignment, 0, len(m))
	for shard, pod := range m {
		entries = append(entries, wireAssignment{ShardID: int(shard), Host: pod.Host, Port: pod.Port})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

// handleRebalance lets an operator force an immediate rebalance pass
// outside the normal RebalanceInterval cadence, for podctl's "rebalance"
// command.
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	if err := s.Rebalance(r.Context(), true); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPods(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.livePods())
}

// handleEventStream serves the control plane's event stream as
// server-sent events: one "data: ...\n\n" block per event, whose payload
// is the tagged JSON document events.Encode produces.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := s.GetShardingEvents()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.Encode(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
