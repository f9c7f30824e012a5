package podtransport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/shardmesh/cluster/internal/envelope"
	"github.com/shardmesh/cluster/internal/events"
)

// Receiver is the pod-side surface the HTTP server dispatches incoming
// envelopes and events to. Sharding implements it; the server package
// never imports Sharding directly so the two can be wired together by
// cmd/pod without an import cycle.
type Receiver interface {
	ReceiveEnvelope(env envelope.Envelope) error
	ReceiveEvent(ev events.Event) error
	Healthy() bool
}

// Router builds the chi mux a pod serves its RPC surface on.
func Router(receiver Receiver, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if !receiver.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/internal/envelopes", func(w http.ResponseWriter, req *http.Request) {
		var env envelope.Envelope
		if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
			log.WithError(err).Warn("podtransport: decoding incoming envelope")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := receiver.ReceiveEnvelope(env); err != nil {
			log.WithError(err).WithField("address", env.Address).Warn("podtransport: dispatching envelope")
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/internal/events", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			log.WithError(err).Warn("podtransport: reading event body")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ev, err := events.Decode(body)
		if err != nil {
			log.WithError(err).Warn("podtransport: decoding incoming event")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := receiver.ReceiveEvent(ev); err != nil {
			log.WithError(err).Warn("podtransport: applying event")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
