package server

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/idgen"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
	"github.com/alfredjeanlab/kodblock/internal/wizard"
)

// renderInput holds transport-agnostic parameters for rendering a collection.
type renderInput struct {
	Blocks model.Collection `json:"blocks"`
	Mode   model.Mode       `json:"mode"`
	Joiner model.Connective `json:"joiner,omitempty"`
}

type renderResult struct {
	Expression string `json:"expression"`
}

// render validates the collection and serializes it.
func (s *KodblockServer) render(in renderInput) (*renderResult, error) {
	if in.Mode == "" {
		in.Mode = model.ModeJoined
	}
	if !in.Mode.IsValid() {
		return nil, inputError(fmt.Sprintf("invalid mode %q", in.Mode))
	}
	if in.Joiner != "" && !in.Joiner.IsValid() {
		return nil, inputError(fmt.Sprintf("invalid joiner %q", in.Joiner))
	}
	if err := in.Blocks.Validate(); err != nil {
		return nil, err
	}
	opts := codegen.Options{Mode: in.Mode, Joiner: in.Joiner}
	s.metrics.renders.WithLabelValues(string(in.Mode)).Inc()
	return &renderResult{Expression: opts.Serialize(in.Blocks)}, nil
}

type platesResult struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
	Message string   `json:"message,omitempty"`
}

// validatePlates splits input into valid and invalid registration numbers.
func validatePlates(input string) *platesResult {
	valid, invalid := model.ValidatePlates(input)
	if valid == nil {
		valid = []string{}
	}
	if invalid == nil {
		invalid = []string{}
	}
	return &platesResult{Valid: valid, Invalid: invalid, Message: model.InvalidPlatesMessage(invalid)}
}

type wizardResult struct {
	Blocks     model.Collection `json:"blocks"`
	Expression string           `json:"expression"`
}

// renderWizard replays a complete set of wizard answers, keyed by step name.
func renderWizard(answers map[string]string) (*wizardResult, error) {
	w, err := wizard.Replay(answers)
	if err != nil {
		if isInputError(err) {
			return nil, err
		}
		return nil, inputError(err.Error())
	}
	return &wizardResult{Blocks: w.Collection(), Expression: w.Expression()}, nil
}

// createDraftInput holds transport-agnostic parameters for creating a draft.
type createDraftInput struct {
	Name      string           `json:"name"`
	Mode      model.Mode       `json:"mode"`
	Blocks    model.Collection `json:"blocks"`
	CreatedBy string           `json:"created_by"`
}

// createDraft validates input, persists a new draft and publishes a
// DraftCreated event. Returns inputError or *model.ValidationError for
// validation failures.
func (s *KodblockServer) createDraft(ctx context.Context, in createDraftInput) (*model.Draft, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, inputError("name is required")
	}
	if in.Mode == "" {
		in.Mode = model.ModeJoined
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	blocks, err := s.assignBlockIDs(in.Blocks)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &model.Draft{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Mode:      in.Mode,
		Blocks:    blocks,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := model.ValidateDraft(d); err != nil {
		return nil, err
	}

	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	s.recordAndPublish(ctx, events.TopicDraftCreated, d.ID, d.CreatedBy, events.DraftCreated{
		Draft:      d,
		Expression: expression(d),
	})
	return d, nil
}

// updateDraftInput carries the optional draft-level changes of PATCH.
type updateDraftInput struct {
	Name   *string           `json:"name,omitempty"`
	Mode   *model.Mode       `json:"mode,omitempty"`
	Blocks *model.Collection `json:"blocks,omitempty"`
	Actor  string            `json:"actor,omitempty"`
}

// updateDraft applies draft-level changes: rename, mode switch or a full
// block replacement.
func (s *KodblockServer) updateDraft(ctx context.Context, id string, in updateDraftInput) (*model.Draft, error) {
	if in.Name == nil && in.Mode == nil && in.Blocks == nil {
		return nil, inputError("nothing to update")
	}
	op := events.OpRename
	switch {
	case in.Blocks != nil:
		op = events.OpReplaceBlock
	case in.Mode != nil && in.Name == nil:
		op = events.OpSetMode
	}
	return s.mutateDraft(ctx, id, in.Actor, op, func(d *model.Draft) error {
		if in.Name != nil {
			d.Name = strings.TrimSpace(*in.Name)
		}
		if in.Mode != nil {
			d.Mode = *in.Mode
		}
		if in.Blocks != nil {
			blocks, err := s.assignBlockIDs(*in.Blocks)
			if err != nil {
				return err
			}
			d.Blocks = blocks
		}
		return nil
	})
}

// deleteDraft removes a draft and publishes DraftDeleted.
func (s *KodblockServer) deleteDraft(ctx context.Context, id, actor string) error {
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.recordAndPublish(ctx, events.TopicDraftDeleted, id, actor, events.DraftDeleted{DraftID: id})
	return nil
}

// mutateDraft loads a draft, applies fn, validates and stores the result in
// one transaction, then publishes DraftUpdated with the given operation.
func (s *KodblockServer) mutateDraft(ctx context.Context, id, actor, op string, fn func(d *model.Draft) error) (*model.Draft, error) {
	var out *model.Draft
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		d, err := tx.GetDraft(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		if err := model.ValidateDraft(d); err != nil {
			return err
		}
		if err := tx.UpdateDraft(ctx, d); err != nil {
			return fmt.Errorf("failed to update draft: %w", err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicDraftUpdated, out.ID, actor, events.DraftUpdated{
		Draft:      out,
		Expression: expression(out),
		Op:         op,
	})
	return out, nil
}

// addBlock appends a block created from the named registry type.
func (s *KodblockServer) addBlock(ctx context.Context, id, typeName, actor string) (*model.Draft, error) {
	t, ok := s.Registry().Lookup(typeName)
	if !ok {
		return nil, inputError(fmt.Sprintf("unknown block type %q", typeName))
	}
	blockID, err := idgen.Block()
	if err != nil {
		return nil, fmt.Errorf("failed to generate block ID: %w", err)
	}
	return s.mutateDraft(ctx, id, actor, events.OpAddBlock, func(d *model.Draft) error {
		b := model.NewBlock(t)
		b.ID = blockID
		d.Blocks = d.Blocks.Append(b)
		return nil
	})
}

// updateBlockInput carries the optional per-block edits of PATCH.
type updateBlockInput struct {
	Value    *string         `json:"value,omitempty"`
	Operator *model.Operator `json:"operator,omitempty"`
	Negate   *bool           `json:"negate,omitempty"`
	Actor    string          `json:"actor,omitempty"`
}

// updateBlock applies value, operator and negate edits to one block.
func (s *KodblockServer) updateBlock(ctx context.Context, id string, index int, in updateBlockInput) (*model.Draft, error) {
	if in.Value == nil && in.Operator == nil && in.Negate == nil {
		return nil, inputError("nothing to update")
	}
	return s.mutateDraft(ctx, id, in.Actor, events.OpUpdateBlock, func(d *model.Draft) error {
		c := d.Blocks
		var err error
		if in.Value != nil {
			if c, err = c.UpdateValue(index, *in.Value); err != nil {
				return err
			}
			b, _ := c.At(index)
			if err := s.checkAllowed(b, *in.Value); err != nil {
				return err
			}
		}
		if in.Operator != nil {
			if c, err = c.UpdateOperator(index, *in.Operator); err != nil {
				return err
			}
		}
		if in.Negate != nil {
			if c, err = c.UpdateNegate(index, *in.Negate); err != nil {
				return err
			}
		}
		d.Blocks = c
		return nil
	})
}

// toggleValue toggles option in the value set of a multi or regnr block.
func (s *KodblockServer) toggleValue(ctx context.Context, id string, index int, option, actor string) (*model.Draft, error) {
	return s.mutateDraft(ctx, id, actor, events.OpToggleValue, func(d *model.Draft) error {
		c, err := d.Blocks.ToggleValue(index, option)
		if err != nil {
			return err
		}
		b, _ := d.Blocks.At(index)
		if !slices.Contains(b.Values, option) {
			if err := s.checkAllowed(b, option); err != nil {
				return err
			}
		}
		d.Blocks = c
		return nil
	})
}

// checkAllowed rejects v when the block's registry type restricts its
// values. An empty value clears the block and is always accepted; blocks
// whose type is not registered stay free-form.
func (s *KodblockServer) checkAllowed(b model.Block, v string) error {
	if v == "" {
		return nil
	}
	t, ok := s.Registry().Lookup(b.Type)
	if !ok {
		return nil
	}
	return t.CheckValue(v)
}

// addPlates adds the valid plates in input to a regnr block and reports the
// invalid ones. The draft is saved even when some tokens are invalid.
func (s *KodblockServer) addPlates(ctx context.Context, id string, index int, input, actor string) (*model.Draft, []string, error) {
	var invalid []string
	d, err := s.mutateDraft(ctx, id, actor, events.OpAddPlates, func(d *model.Draft) error {
		c, bad, err := d.Blocks.AddPlates(index, input)
		if err != nil {
			return err
		}
		d.Blocks, invalid = c, bad
		return nil
	})
	return d, invalid, err
}

// removeBlock deletes the block at index.
func (s *KodblockServer) removeBlock(ctx context.Context, id string, index int, actor string) (*model.Draft, error) {
	return s.mutateDraft(ctx, id, actor, events.OpRemoveBlock, func(d *model.Draft) error {
		c, err := d.Blocks.Remove(index)
		if err != nil {
			return err
		}
		d.Blocks = c
		return nil
	})
}

// moveBlock moves the block at from to position to.
func (s *KodblockServer) moveBlock(ctx context.Context, id string, from, to int, actor string) (*model.Draft, error) {
	return s.mutateDraft(ctx, id, actor, events.OpMoveBlock, func(d *model.Draft) error {
		c, err := d.Blocks.Move(from, to)
		if err != nil {
			return err
		}
		d.Blocks = c
		return nil
	})
}

// assignBlockIDs gives every block without an ID a fresh one.
func (s *KodblockServer) assignBlockIDs(c model.Collection) (model.Collection, error) {
	blocks := c.Blocks()
	for i := range blocks {
		if blocks[i].ID != "" {
			continue
		}
		id, err := idgen.Block()
		if err != nil {
			return model.Collection{}, fmt.Errorf("failed to generate block ID: %w", err)
		}
		blocks[i].ID = id
	}
	return model.NewCollection(blocks...), nil
}

// expression renders a draft in its own mode.
func expression(d *model.Draft) string {
	return codegen.Serialize(d.Blocks, d.Mode)
}
