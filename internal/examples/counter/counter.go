// Package counter is a minimal Counter entity type — {Get, Inc, Dec} —
// used by the integration tests as a living example of registering an
// entity type against Sharding and driving it through Messenger.
package counter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shardmesh/cluster/internal/entity"
	"github.com/shardmesh/cluster/internal/envelope"
)

// EntityType is the type name Counter registers under.
const EntityType = "Counter"

// Op distinguishes the three operations Counter understands.
type Op string

const (
	OpGet Op = "Get"
	OpInc Op = "Inc"
	OpDec Op = "Dec"
)

// Command is the wire protocol Counter decodes. PrimaryKey is per-message
// (not per-entity), minted fresh by the caller so Ask can await this
// specific call's reply independent of any other in-flight command
// against the same counter.
type Command struct {
	Key string `json:"key"`
	Op  Op     `json:"op"`
}

// PrimaryKey implements envelope.Message.
func (c Command) PrimaryKey() string { return c.Key }

// Get builds a Get command addressed to one specific reply, keyed by a
// fresh primary key.
func Get() Command { return Command{Key: envelope.NewPrimaryKey(), Op: OpGet} }

// Inc builds an Inc command.
func Inc() Command { return Command{Key: envelope.NewPrimaryKey(), Op: OpInc} }

// Dec builds a Dec command.
func Dec() Command { return Command{Key: envelope.NewPrimaryKey(), Op: OpDec} }

// Decode implements entity.Decoder for Counter's wire protocol.
func Decode(raw json.RawMessage) (envelope.Message, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("counter: decoding command: %w", err)
	}
	return cmd, nil
}

// Behavior returns a fresh entity.Behavior closing over its own counter
// value, matching how one live entity owns its own private state for the
// lifetime of its scope.
func Behavior() entity.Behavior {
	return func(ctx context.Context, inbox *entity.Mailbox) {
		var value int64
		for {
			d, ok := inbox.Take(ctx.Done())
			if !ok {
				return
			}

			cmd, ok := d.Entry.Message.(Command)
			if !ok {
				d.Replier.Fail(fmt.Sprintf("counter: unexpected message type %T", d.Entry.Message))
				continue
			}

			switch cmd.Op {
			case OpInc:
				value++
			case OpDec:
				value--
			case OpGet:
			default:
				d.Replier.Fail(fmt.Sprintf("counter: unknown op %q", cmd.Op))
				continue
			}

			d.Replier.Succeed(value)
		}
	}
}
