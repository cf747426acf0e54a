package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
	"github.com/alfredjeanlab/kodblock/internal/store/memory"
)

// recordingPublisher captures published events; err, when set, is returned
// from every Publish.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// brokenEventStore fails RecordEvent but otherwise behaves like memory.Store.
type brokenEventStore struct {
	*memory.Store
}

func (s brokenEventStore) RecordEvent(context.Context, *model.Event) error {
	return errors.New("event log unavailable")
}

// testCtx creates a fresh server with an in-memory store, a recording
// publisher and a background context.
func testCtx(t *testing.T) (*KodblockServer, *recordingPublisher, context.Context) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewKodblockServer(memory.New(), pub, nil), pub, context.Background()
}

// requireCode asserts that err is a gRPC error with the given status code.
func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected gRPC error with code %v, got nil", code)
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status error, got %v", err)
	}
	if st.Code() != code {
		t.Fatalf("expected code=%v, got %v", code, st.Code())
	}
}

func TestGRPCErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		code codes.Code
	}{
		{"Input", inputError("bad"), codes.InvalidArgument},
		{"Validation", &model.ValidationError{Errors: []model.FieldError{{Field: "name", Message: "is required"}}}, codes.InvalidArgument},
		{"Index", fmt.Errorf("edit: %w", &model.IndexError{Index: 4, Len: 1}), codes.InvalidArgument},
		{"Kind", &model.KindError{Op: "toggle", Kind: model.KindTag}, codes.InvalidArgument},
		{"NotFound", fmt.Errorf("get: %w", store.ErrNotFound), codes.NotFound},
		{"Canceled", context.Canceled, codes.Canceled},
		{"Deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"Other", errors.New("disk on fire"), codes.Internal},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, grpcError(tc.err), tc.code)
		})
	}
	if grpcError(nil) != nil {
		t.Fatal("grpcError(nil) should be nil")
	}
}

func TestNewKodblockServer_Defaults(t *testing.T) {
	s := NewKodblockServer(memory.New(), nil, nil)
	if s.Registry() == nil || s.publisher == nil || s.sseHub == nil {
		t.Fatal("expected default registry, publisher and hub")
	}
	if _, ok := s.Registry().Lookup("regnr"); !ok {
		t.Fatal("expected the built-in registry")
	}
}

func TestSetRegistry(t *testing.T) {
	s, _, ctx := testCtx(t)
	d, err := s.createDraft(ctx, createDraftInput{Name: "Färg"})
	if err != nil {
		t.Fatalf("createDraft: %v", err)
	}
	if _, err := s.addBlock(ctx, d.ID, "farg-multi", ""); !isInputError(err) {
		t.Fatalf("addBlock before reload: err = %v, want input error", err)
	}

	reg, err := model.NewRegistry([]model.BlockType{
		{Name: "farg-multi", Kind: model.KindMulti, Field: "FARG", Options: []string{"RÖD", "BLÅ"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.SetRegistry(reg)
	s.SetRegistry(nil)

	got, err := s.addBlock(ctx, d.ID, "farg-multi", "")
	if err != nil {
		t.Fatalf("addBlock after reload: %v", err)
	}
	if got.Blocks.Len() != 1 || got.Blocks.Blocks()[0].Field != "FARG" {
		t.Errorf("blocks = %+v", got.Blocks.Blocks())
	}
	if _, ok := s.Registry().Lookup("regnr"); ok {
		t.Error("old registry still in effect")
	}
}

func TestCreateDraft_Publishes(t *testing.T) {
	s, pub, ctx := testCtx(t)
	d, err := s.createDraft(ctx, createDraftInput{
		Name:   "Elbilar",
		Blocks: model.NewCollection(model.Block{Kind: model.KindField, Field: "DRIVMEDEL", Value: "EL"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != events.TopicDraftCreated {
		t.Fatalf("published %v", pub.topics)
	}
	created := pub.events[0].(events.DraftCreated)
	if created.Draft.ID != d.ID || created.Expression != "DRIVMEDEL in('EL')" {
		t.Fatalf("unexpected payload %+v", created)
	}
}

func TestCreateDraft_EventFailuresAreBestEffort(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	s := NewKodblockServer(brokenEventStore{memory.New()}, pub, nil)
	ctx := context.Background()

	d, err := s.createDraft(ctx, createDraftInput{Name: "Still saved"})
	if err != nil {
		t.Fatalf("createDraft should succeed despite event failures: %v", err)
	}
	if _, err := s.store.GetDraft(ctx, d.ID); err != nil {
		t.Fatalf("draft not stored: %v", err)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("expected a publish attempt, got %d", len(pub.topics))
	}
}

func TestCreateDraft_Validation(t *testing.T) {
	s, pub, ctx := testCtx(t)
	for _, tc := range []struct {
		name string
		in   createDraftInput
	}{
		{"BlankName", createDraftInput{Name: "   "}},
		{"BadMode", createDraftInput{Name: "x", Mode: "loose"}},
		{"BadPlate", createDraftInput{Name: "x", Blocks: model.NewCollection(model.Block{Kind: model.KindRegNr, Values: []string{"X"}})}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.createDraft(ctx, tc.in)
			if !isInputError(err) {
				t.Fatalf("expected input error, got %v", err)
			}
		})
	}
	if len(pub.topics) != 0 {
		t.Fatalf("rejected drafts must not publish, got %v", pub.topics)
	}
}

func TestMutateDraft_RollsBackOnError(t *testing.T) {
	s, pub, ctx := testCtx(t)
	d, err := s.createDraft(ctx, createDraftInput{Name: "Keep"})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err = s.mutateDraft(ctx, d.ID, "", events.OpRename, func(d *model.Draft) error {
		d.Name = "Changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.store.GetDraft(ctx, d.ID)
	if got.Name != "Keep" {
		t.Fatalf("name = %q, want Keep", got.Name)
	}
	if len(pub.topics) != 1 {
		t.Fatalf("failed mutation must not publish, got %v", pub.topics)
	}
}

func TestUpdateDraft_Ops(t *testing.T) {
	s, pub, ctx := testCtx(t)
	d, _ := s.createDraft(ctx, createDraftInput{Name: "Ops"})
	name := "Renamed"
	mode := model.ModeLiteral
	blocks := model.NewCollection(model.Block{Kind: model.KindTag, Value: "Buss"})

	for _, tc := range []struct {
		name string
		in   updateDraftInput
		op   string
	}{
		{"Rename", updateDraftInput{Name: &name}, events.OpRename},
		{"Mode", updateDraftInput{Mode: &mode}, events.OpSetMode},
		{"Blocks", updateDraftInput{Blocks: &blocks}, events.OpReplaceBlock},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.updateDraft(ctx, d.ID, tc.in); err != nil {
				t.Fatal(err)
			}
			last := pub.events[len(pub.events)-1].(events.DraftUpdated)
			if last.Op != tc.op {
				t.Fatalf("op = %q, want %q", last.Op, tc.op)
			}
		})
	}

	got, _ := s.store.GetDraft(ctx, d.ID)
	b, _ := got.Blocks.At(0)
	if got.Name != "Renamed" || got.Mode != model.ModeLiteral || b.ID == "" {
		t.Fatalf("got name=%q mode=%q block=%+v", got.Name, got.Mode, b)
	}
}

func TestAddPlates_SavesValidAndReportsInvalid(t *testing.T) {
	s, _, ctx := testCtx(t)
	d, _ := s.createDraft(ctx, createDraftInput{Name: "Plates"})
	if _, err := s.addBlock(ctx, d.ID, "regnr", ""); err != nil {
		t.Fatal(err)
	}
	got, invalid, err := s.addPlates(ctx, d.ID, 0, "abc123 12 def45g", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(invalid) != 1 || invalid[0] != "12" {
		t.Fatalf("invalid = %q", invalid)
	}
	if expr := expression(got); expr != "REGNR in('ABC123','DEF45G')" {
		t.Fatalf("expression = %q", expr)
	}
}

func TestRenderWizard_Errors(t *testing.T) {
	for _, answers := range []map[string]string{
		{"vehicle": "Personbil"},
		{"vehicle": "Traktor"},
		{"vehicle": "Personbil", "in_traffic": "JA", "fuel": "EL", "body": "FLAK"},
	} {
		if _, err := renderWizard(answers); !isInputError(err) {
			t.Errorf("renderWizard(%v) err = %v, want input error", answers, err)
		}
	}
}

func TestUpdateBlock_RegistryOptions(t *testing.T) {
	s, _, ctx := testCtx(t)
	d, err := s.createDraft(ctx, createDraftInput{Name: "Drivmedel"})
	if err != nil {
		t.Fatalf("createDraft: %v", err)
	}
	if _, err := s.addBlock(ctx, d.ID, "drivmedel", ""); err != nil {
		t.Fatalf("addBlock: %v", err)
	}

	bad := "NOTAFUEL"
	_, err = s.updateBlock(ctx, d.ID, 0, updateBlockInput{Value: &bad})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("updateBlock(%q) err = %v, want *ValidationError", bad, err)
	}
	requireCode(t, grpcError(err), codes.InvalidArgument)

	empty := ""
	if _, err := s.updateBlock(ctx, d.ID, 0, updateBlockInput{Value: &empty}); err != nil {
		t.Errorf("clearing the value: %v", err)
	}

	// A type that is no longer registered keeps its block free-form.
	reg, err := model.NewRegistry([]model.BlockType{{Name: "regnr", Kind: model.KindRegNr, Field: model.RegNrField}})
	if err != nil {
		t.Fatal(err)
	}
	s.SetRegistry(reg)
	got, err := s.updateBlock(ctx, d.ID, 0, updateBlockInput{Value: &bad})
	if err != nil {
		t.Fatalf("updateBlock after reload: %v", err)
	}
	if expr := expression(got); expr != "DRIVMEDEL in('NOTAFUEL')" {
		t.Errorf("expression = %q", expr)
	}
}

func TestToggleValue_RegistryOptions(t *testing.T) {
	s, _, ctx := testCtx(t)
	d, err := s.createDraft(ctx, createDraftInput{Name: "Flera"})
	if err != nil {
		t.Fatalf("createDraft: %v", err)
	}
	if _, err := s.addBlock(ctx, d.ID, "drivmedel-multi", ""); err != nil {
		t.Fatalf("addBlock: %v", err)
	}

	if _, err := s.toggleValue(ctx, d.ID, 0, "KOL", ""); !isInputError(err) {
		t.Fatalf("toggle KOL err = %v, want input error", err)
	}
	got, err := s.toggleValue(ctx, d.ID, 0, "EL", "")
	if err != nil {
		t.Fatalf("toggle EL: %v", err)
	}
	if vals := got.Blocks.Blocks()[0].Values; len(vals) != 1 || vals[0] != "EL" {
		t.Errorf("values = %v", vals)
	}
}
