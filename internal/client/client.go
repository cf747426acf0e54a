// Package client provides a transport-agnostic interface for the kodblock
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// BuilderClient is the interface the kb CLI uses to talk to a kodblock
// server. It is implemented by HTTPClient (default) and GRPCClient.
type BuilderClient interface {
	// Stateless builder
	ListBlockTypes(ctx context.Context) ([]model.BlockType, error)
	Render(ctx context.Context, req *RenderRequest) (string, error)
	ValidatePlates(ctx context.Context, input string) (*PlatesResult, error)
	RenderWizard(ctx context.Context, answers map[string]string) (*WizardResult, error)

	// Draft CRUD
	CreateDraft(ctx context.Context, req *CreateDraftRequest) (*model.Draft, error)
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	ListDrafts(ctx context.Context, req *ListDraftsRequest) (*ListDraftsResponse, error)
	UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*model.Draft, error)
	DeleteDraft(ctx context.Context, id, actor string) error
	GetExpression(ctx context.Context, id string, mode model.Mode) (string, error)
	GetEvents(ctx context.Context, id string) ([]*model.Event, error)

	// Block editing
	AddBlock(ctx context.Context, id, blockType, actor string) (*model.Draft, error)
	UpdateBlock(ctx context.Context, id string, index int, req *UpdateBlockRequest) (*model.Draft, error)
	ToggleValue(ctx context.Context, id string, index int, option, actor string) (*model.Draft, error)
	AddPlates(ctx context.Context, id string, index int, input, actor string) (*AddPlatesResponse, error)
	RemoveBlock(ctx context.Context, id string, index int, actor string) (*model.Draft, error)
	MoveBlock(ctx context.Context, id string, from, to int, actor string) (*model.Draft, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// RenderRequest holds a block collection to serialize.
type RenderRequest struct {
	Blocks model.Collection `json:"blocks"`
	Mode   model.Mode       `json:"mode,omitempty"`
	Joiner model.Connective `json:"joiner,omitempty"`
}

// PlatesResult partitions free-text input into plates and rejected tokens.
type PlatesResult struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
	Message string   `json:"message,omitempty"`
}

// WizardResult is the outcome of replaying wizard answers.
type WizardResult struct {
	Blocks     model.Collection `json:"blocks"`
	Expression string           `json:"expression"`
}

// CreateDraftRequest holds parameters for creating a draft.
type CreateDraftRequest struct {
	Name      string           `json:"name"`
	Mode      model.Mode       `json:"mode,omitempty"`
	Blocks    model.Collection `json:"blocks"`
	CreatedBy string           `json:"created_by,omitempty"`
}

// ListDraftsRequest holds parameters for listing drafts.
type ListDraftsRequest struct {
	Search    string `json:"search,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListDraftsResponse is the response from ListDrafts.
type ListDraftsResponse struct {
	Drafts []*model.Draft `json:"drafts"`
	Total  int            `json:"total"`
}

// UpdateDraftRequest holds optional draft-level changes.
// Nil pointer fields mean "don't change".
type UpdateDraftRequest struct {
	Name   *string           `json:"name,omitempty"`
	Mode   *model.Mode       `json:"mode,omitempty"`
	Blocks *model.Collection `json:"blocks,omitempty"`
	Actor  string            `json:"actor,omitempty"`
}

// UpdateBlockRequest holds optional edits to a single block.
type UpdateBlockRequest struct {
	Value    *string         `json:"value,omitempty"`
	Operator *model.Operator `json:"operator,omitempty"`
	Negate   *bool           `json:"negate,omitempty"`
	Actor    string          `json:"actor,omitempty"`
}

// AddPlatesResponse is the saved draft plus the tokens that were rejected.
type AddPlatesResponse struct {
	Draft   *model.Draft `json:"draft"`
	Invalid []string     `json:"invalid"`
	Message string       `json:"message,omitempty"`
}

// IsNotFound reports whether err is a not-found response from either
// transport.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return status.Code(err) == codes.NotFound
}
