package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

const expressionService = "/kodblock.v1.ExpressionService/"

// GRPCClient implements BuilderClient using the gRPC transport. Messages
// are google.protobuf.Struct values carrying the HTTP API's JSON objects.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

var _ BuilderClient = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a Bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// invoke calls method with req encoded as a Struct and decodes the response
// into result, when non-nil.
func (c *GRPCClient) invoke(ctx context.Context, method string, req any, result any) error {
	in := new(structpb.Struct)
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		if err := protojson.Unmarshal(data, in); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, expressionService+method, in, out); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *GRPCClient) draft(ctx context.Context, method string, req any) (*model.Draft, error) {
	var d model.Draft
	if err := c.invoke(ctx, method, req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

type blockRef struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Actor string `json:"actor,omitempty"`
}

// --- Stateless builder ---

func (c *GRPCClient) ListBlockTypes(ctx context.Context) ([]model.BlockType, error) {
	var resp struct {
		BlockTypes []model.BlockType `json:"block_types"`
	}
	if err := c.invoke(ctx, "ListBlockTypes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BlockTypes, nil
}

func (c *GRPCClient) Render(ctx context.Context, req *RenderRequest) (string, error) {
	var resp struct {
		Expression string `json:"expression"`
	}
	if err := c.invoke(ctx, "Render", req, &resp); err != nil {
		return "", err
	}
	return resp.Expression, nil
}

func (c *GRPCClient) ValidatePlates(ctx context.Context, input string) (*PlatesResult, error) {
	var resp PlatesResult
	if err := c.invoke(ctx, "ValidatePlates", map[string]string{"input": input}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) RenderWizard(ctx context.Context, answers map[string]string) (*WizardResult, error) {
	var resp WizardResult
	if err := c.invoke(ctx, "RenderWizard", map[string]any{"answers": answers}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Draft CRUD ---

func (c *GRPCClient) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*model.Draft, error) {
	return c.draft(ctx, "CreateDraft", req)
}

func (c *GRPCClient) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	return c.draft(ctx, "GetDraft", map[string]string{"id": id})
}

func (c *GRPCClient) ListDrafts(ctx context.Context, req *ListDraftsRequest) (*ListDraftsResponse, error) {
	var resp ListDraftsResponse
	if err := c.invoke(ctx, "ListDrafts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) UpdateDraft(ctx context.Context, id string, req *UpdateDraftRequest) (*model.Draft, error) {
	return c.draft(ctx, "UpdateDraft", struct {
		ID string `json:"id"`
		*UpdateDraftRequest
	}{id, req})
}

func (c *GRPCClient) DeleteDraft(ctx context.Context, id, actor string) error {
	return c.invoke(ctx, "DeleteDraft", map[string]string{"id": id, "actor": actor}, nil)
}

func (c *GRPCClient) GetExpression(ctx context.Context, id string, mode model.Mode) (string, error) {
	var resp struct {
		Expression string `json:"expression"`
	}
	req := map[string]string{"id": id, "mode": string(mode)}
	if err := c.invoke(ctx, "GetExpression", req, &resp); err != nil {
		return "", err
	}
	return resp.Expression, nil
}

func (c *GRPCClient) GetEvents(ctx context.Context, id string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.invoke(ctx, "GetEvents", map[string]string{"id": id}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Block editing ---

func (c *GRPCClient) AddBlock(ctx context.Context, id, blockType, actor string) (*model.Draft, error) {
	return c.draft(ctx, "AddBlock", map[string]string{"id": id, "type": blockType, "actor": actor})
}

func (c *GRPCClient) UpdateBlock(ctx context.Context, id string, index int, req *UpdateBlockRequest) (*model.Draft, error) {
	return c.draft(ctx, "UpdateBlock", struct {
		ID    string `json:"id"`
		Index int    `json:"index"`
		*UpdateBlockRequest
	}{id, index, req})
}

func (c *GRPCClient) ToggleValue(ctx context.Context, id string, index int, option, actor string) (*model.Draft, error) {
	return c.draft(ctx, "ToggleValue", struct {
		blockRef
		Option string `json:"option"`
	}{blockRef{id, index, actor}, option})
}

func (c *GRPCClient) AddPlates(ctx context.Context, id string, index int, input, actor string) (*AddPlatesResponse, error) {
	var resp AddPlatesResponse
	req := struct {
		blockRef
		Input string `json:"input"`
	}{blockRef{id, index, actor}, input}
	if err := c.invoke(ctx, "AddPlates", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) RemoveBlock(ctx context.Context, id string, index int, actor string) (*model.Draft, error) {
	return c.draft(ctx, "RemoveBlock", blockRef{id, index, actor})
}

func (c *GRPCClient) MoveBlock(ctx context.Context, id string, from, to int, actor string) (*model.Draft, error) {
	return c.draft(ctx, "MoveBlock", map[string]any{"id": id, "from": from, "to": to, "actor": actor})
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.invoke(ctx, "Health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
