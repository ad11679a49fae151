package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/mgth/SpatialVisualizer/internal/classify"
	"github.com/mgth/SpatialVisualizer/internal/oscnet"
)

// Record is one decoded message, written as a JSON line by Dump.
type Record struct {
	Time    time.Time      `json:"time"`
	Address string         `json:"address"`
	Args    []any          `json:"args,omitempty"`
	Family  string         `json:"family,omitempty"`
	Type    string         `json:"type,omitempty"`
	Event   classify.Event `json:"event,omitempty"`
}

// DumpOptions filters what Dump writes.
type DumpOptions struct {
	// Unclassified also writes messages no family recognised.
	Unclassified bool
}

// Dump decodes every datagram and writes one JSON line per message.
func Dump(ctx context.Context, src *Source, w io.Writer, opts DumpOptions) (Stats, error) {
	enc := json.NewEncoder(w)
	return each(ctx, src, func(d Datagram, st *Stats) error {
		msgs, err := oscnet.Decode(d.Payload)
		if err != nil {
			st.Malformed++
			return nil
		}
		for _, msg := range msgs {
			st.Messages++
			ev, family := classify.ClassifyFamily(msg.Address, msg.Arguments)
			if ev == nil && !opts.Unclassified {
				continue
			}
			rec := Record{
				Time:    d.Time,
				Address: msg.Address,
				Args:    jsonArgs(msg.Arguments),
				Family:  family,
				Event:   ev,
			}
			if ev != nil {
				rec.Type = fmt.Sprintf("%T", ev)
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
		return nil
	})
}

// jsonArgs replaces values encoding/json cannot represent.
func jsonArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case float32:
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				out[i] = nil
				continue
			}
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				out[i] = nil
				continue
			}
		}
		out[i] = a
	}
	return out
}
