// Package events defines the draft event topics and payloads, and the
// publishers and subscribers that carry them over NATS.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// Event topic constants
const (
	TopicDraftCreated = "kodblock.draft.created"
	TopicDraftUpdated = "kodblock.draft.updated"
	TopicDraftDeleted = "kodblock.draft.deleted"

	// TopicAll matches every kodblock topic (NATS wildcard).
	TopicAll = "kodblock.>"
)

// Update operations carried by DraftUpdated.Op.
const (
	OpRename       = "rename"
	OpSetMode      = "set_mode"
	OpAddBlock     = "add_block"
	OpUpdateBlock  = "update_block"
	OpToggleValue  = "toggle_value"
	OpAddPlates    = "add_plates"
	OpRemoveBlock  = "remove_block"
	OpMoveBlock    = "move_block"
	OpReplaceBlock = "replace_blocks"
)

// Event types

type DraftCreated struct {
	Draft      *model.Draft `json:"draft"`
	Expression string       `json:"expression"`
}

type DraftUpdated struct {
	Draft      *model.Draft `json:"draft"`
	Expression string       `json:"expression"`
	Op         string       `json:"op"`
}

type DraftDeleted struct {
	DraftID string `json:"draft_id"`
}

// DraftIDOf extracts the draft ID from any of the payload types.
func DraftIDOf(event any) string {
	switch e := event.(type) {
	case DraftCreated:
		if e.Draft != nil {
			return e.Draft.ID
		}
	case DraftUpdated:
		if e.Draft != nil {
			return e.Draft.ID
		}
	case DraftDeleted:
		return e.DraftID
	}
	return ""
}

// PayloadDraftID extracts the draft ID from an encoded payload as received
// by a Subscriber. It returns "" when data is not a draft event.
func PayloadDraftID(data []byte) string {
	var p struct {
		Draft *struct {
			ID string `json:"id"`
		} `json:"draft"`
		DraftID string `json:"draft_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	if p.Draft != nil {
		return p.Draft.ID
	}
	return p.DraftID
}

// IsDraftTopic reports whether topic belongs to the draft event family.
func IsDraftTopic(topic string) bool {
	return strings.HasPrefix(topic, "kodblock.draft.")
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
