package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

const expressionServiceName = "/kodblock.v1.ExpressionService"

// ExpressionServiceServer is the gRPC surface of the builder. Requests and
// responses are google.protobuf.Struct values carrying the same JSON objects
// as the HTTP API.
type ExpressionServiceServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBlockTypes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidatePlates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenderWizard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDrafts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetExpression(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddBlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateBlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleValue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddPlates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveBlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MoveBlock(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(ExpressionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, m structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return m(srv.(ExpressionServiceServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: expressionServiceName + "/" + name}
			return interceptor(ctx, in, info, call)
		},
	}
}

// ExpressionServiceDesc describes kodblock.v1.ExpressionService.
var ExpressionServiceDesc = grpc.ServiceDesc{
	ServiceName: expressionServiceName[1:],
	HandlerType: (*ExpressionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", ExpressionServiceServer.Health),
		unary("ListBlockTypes", ExpressionServiceServer.ListBlockTypes),
		unary("Render", ExpressionServiceServer.Render),
		unary("ValidatePlates", ExpressionServiceServer.ValidatePlates),
		unary("RenderWizard", ExpressionServiceServer.RenderWizard),
		unary("CreateDraft", ExpressionServiceServer.CreateDraft),
		unary("GetDraft", ExpressionServiceServer.GetDraft),
		unary("ListDrafts", ExpressionServiceServer.ListDrafts),
		unary("UpdateDraft", ExpressionServiceServer.UpdateDraft),
		unary("DeleteDraft", ExpressionServiceServer.DeleteDraft),
		unary("GetExpression", ExpressionServiceServer.GetExpression),
		unary("GetEvents", ExpressionServiceServer.GetEvents),
		unary("AddBlock", ExpressionServiceServer.AddBlock),
		unary("UpdateBlock", ExpressionServiceServer.UpdateBlock),
		unary("ToggleValue", ExpressionServiceServer.ToggleValue),
		unary("AddPlates", ExpressionServiceServer.AddPlates),
		unary("RemoveBlock", ExpressionServiceServer.RemoveBlock),
		unary("MoveBlock", ExpressionServiceServer.MoveBlock),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kodblock/v1/expression.proto",
}

// NewGRPCServer creates a gRPC server with the standard interceptors and
// registers the expression service, the health service and reflection.
func NewGRPCServer(s *KodblockServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			s.metrics.unaryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)
	srv.RegisterService(&ExpressionServiceDesc, &grpcService{s: s})

	hs := health.NewServer()
	hs.SetServingStatus(ExpressionServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv
}

// grpcService adapts KodblockServer to ExpressionServiceServer.
type grpcService struct {
	s *KodblockServer
}

var _ ExpressionServiceServer = (*grpcService)(nil)

// fromStruct decodes a request Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return inputError(fmt.Sprintf("invalid request: %v", err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return inputError(fmt.Sprintf("invalid request: %v", err))
	}
	return nil
}

// toStruct encodes v as a response Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// respond converts a result and error pair into a gRPC response.
func respond(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := toStruct(v)
	if err != nil {
		return nil, grpcError(err)
	}
	return out, nil
}

type draftRef struct {
	ID    string `json:"id"`
	Actor string `json:"actor,omitempty"`
}

type blockRef struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Actor string `json:"actor,omitempty"`
}

func (g *grpcService) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return respond(map[string]string{"status": "ok"}, nil)
}

func (g *grpcService) ListBlockTypes(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return respond(map[string]any{"block_types": g.s.Registry().Types()}, nil)
}

func (g *grpcService) Render(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in renderInput
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.render(in))
}

func (g *grpcService) ValidatePlates(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Input string `json:"input"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(validatePlates(in.Input), nil)
}

func (g *grpcService) RenderWizard(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Answers map[string]string `json:"answers"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(renderWizard(in.Answers))
}

func (g *grpcService) CreateDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in createDraftInput
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.createDraft(ctx, in))
}

func (g *grpcService) GetDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in draftRef
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.store.GetDraft(ctx, in.ID))
}

func (g *grpcService) ListDrafts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var filter model.DraftFilter
	if err := fromStruct(req, &filter); err != nil {
		return respond(nil, err)
	}
	drafts, total, err := g.s.store.ListDrafts(ctx, filter)
	if drafts == nil {
		drafts = []*model.Draft{}
	}
	return respond(map[string]any{"drafts": drafts, "total": total}, err)
}

func (g *grpcService) UpdateDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
		updateDraftInput
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.updateDraft(ctx, in.ID, in.updateDraftInput))
}

func (g *grpcService) DeleteDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in draftRef
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(map[string]any{}, g.s.deleteDraft(ctx, in.ID, in.Actor))
}

func (g *grpcService) GetExpression(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID   string     `json:"id"`
		Mode model.Mode `json:"mode"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	d, err := g.s.store.GetDraft(ctx, in.ID)
	if err != nil {
		return respond(nil, err)
	}
	if in.Mode == "" {
		in.Mode = d.Mode
	}
	return respond(g.s.render(renderInput{Blocks: d.Blocks, Mode: in.Mode}))
}

func (g *grpcService) GetEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in draftRef
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	evts, err := g.s.store.GetEvents(ctx, in.ID)
	if evts == nil {
		evts = []*model.Event{}
	}
	return respond(map[string]any{"events": evts}, err)
}

func (g *grpcService) AddBlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		draftRef
		Type string `json:"type"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.addBlock(ctx, in.ID, in.Type, in.Actor))
}

func (g *grpcService) UpdateBlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID    string `json:"id"`
		Index int    `json:"index"`
		updateBlockInput
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.updateBlock(ctx, in.ID, in.Index, in.updateBlockInput))
}

func (g *grpcService) ToggleValue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		blockRef
		Option string `json:"option"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.toggleValue(ctx, in.ID, in.Index, in.Option, in.Actor))
}

func (g *grpcService) AddPlates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		blockRef
		Input string `json:"input"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	d, invalid, err := g.s.addPlates(ctx, in.ID, in.Index, in.Input, in.Actor)
	if invalid == nil {
		invalid = []string{}
	}
	return respond(platesResponse{Draft: d, Invalid: invalid, Message: model.InvalidPlatesMessage(invalid)}, err)
}

func (g *grpcService) RemoveBlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in blockRef
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.removeBlock(ctx, in.ID, in.Index, in.Actor))
}

func (g *grpcService) MoveBlock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		draftRef
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := fromStruct(req, &in); err != nil {
		return respond(nil, err)
	}
	return respond(g.s.moveBlock(ctx, in.ID, in.From, in.To, in.Actor))
}
