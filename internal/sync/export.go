// Package sync periodically exports drafts as JSONL to backup destinations.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	DraftCount int       `json:"draft_count"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// exportedDraft is a draft together with its rendered expression, so that a
// backup can be read without the serializer.
type exportedDraft struct {
	*model.Draft
	Expression string `json:"expression"`
}

// ExportJSONL writes all drafts and their events from the store as JSONL to w.
// Drafts are sorted by ID; each draft is followed by its events in order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	// Fetch all drafts (no filter, no limit).
	drafts, _, err := s.ListDrafts(ctx, model.DraftFilter{Sort: "created_at"})
	if err != nil {
		return fmt.Errorf("list drafts: %w", err)
	}

	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].ID < drafts[j].ID
	})

	events := make(map[string][]*model.Event, len(drafts))
	var eventCount int
	for _, d := range drafts {
		evs, err := s.GetEvents(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("get events for %s: %w", d.ID, err)
		}
		events[d.ID] = evs
		eventCount += len(evs)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		DraftCount: len(drafts),
		EventCount: eventCount,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, d := range drafts {
		rec := exportedDraft{Draft: d, Expression: codegen.Serialize(d.Blocks, d.Mode)}
		if err := enc.Encode(record{Type: "draft", Data: rec}); err != nil {
			return fmt.Errorf("encode draft %s: %w", d.ID, err)
		}
		for _, e := range events[d.ID] {
			if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
				return fmt.Errorf("encode event %d: %w", e.ID, err)
			}
		}
	}

	return nil
}
