package events

import (
	"encoding/json"
	"fmt"

	"github.com/shardmesh/cluster/internal/identity"
)

type wireShardSet struct {
	Pod      identity.PodAddress `json:"pod"`
	ShardIDs []identity.ShardID  `json:"shardIds"`
}

type wirePod struct {
	Pod identity.PodAddress `json:"pod"`
}

type wireHealth struct {
	Pod     identity.PodAddress `json:"pod"`
	Healthy bool                `json:"healthy"`
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode renders ev as a tagged JSON document Notify can send over the
// wire and Decode can reconstruct into the matching Go type.
func Encode(ev Event) ([]byte, error) {
	var typ string
	var data any

	switch e := ev.(type) {
	case ShardsAssigned:
		typ, data = "ShardsAssigned", wireShardSet{Pod: e.Pod, ShardIDs: e.ShardID}
	case ShardsUnassigned:
		typ, data = "ShardsUnassigned", wireShardSet{Pod: e.Pod, ShardIDs: e.ShardID}
	case PodRegistered:
		typ, data = "PodRegistered", wirePod{Pod: e.Pod}
	case PodUnregistered:
		typ, data = "PodUnregistered", wirePod{Pod: e.Pod}
	case PodHealthChecked:
		typ, data = "PodHealthChecked", wireHealth{Pod: e.Pod, Healthy: e.Healthy}
	default:
		return nil, fmt.Errorf("events: unknown event type %T", ev)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("events: encoding %s: %w", typ, err)
	}
	return json.Marshal(wireEvent{Type: typ, Data: raw})
}

// Decode reconstructs an Event from the bytes Encode produced.
func Decode(b []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("events: decoding envelope: %w", err)
	}

	switch w.Type {
	case "ShardsAssigned":
		var d wireShardSet
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("events: decoding ShardsAssigned: %w", err)
		}
		return ShardsAssigned{Pod: d.Pod, ShardID: d.ShardIDs}, nil
	case "ShardsUnassigned":
		var d wireShardSet
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("events: decoding ShardsUnassigned: %w", err)
		}
		return ShardsUnassigned{Pod: d.Pod, ShardID: d.ShardIDs}, nil
	case "PodRegistered":
		var d wirePod
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("events: decoding PodRegistered: %w", err)
		}
		return PodRegistered{Pod: d.Pod}, nil
	case "PodUnregistered":
		var d wirePod
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("events: decoding PodUnregistered: %w", err)
		}
		return PodUnregistered{Pod: d.Pod}, nil
	case "PodHealthChecked":
		var d wireHealth
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, fmt.Errorf("events: decoding PodHealthChecked: %w", err)
		}
		return PodHealthChecked{Pod: d.Pod, Healthy: d.Healthy}, nil
	default:
		return nil, fmt.Errorf("events: unknown event type %q", w.Type)
	}
}
