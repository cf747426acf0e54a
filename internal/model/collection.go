package model

import (
	"encoding/json"
	"strconv"
)

// Collection is an immutable, ordered list of blocks. Every operation returns
// a new Collection and leaves the receiver untouched; the zero value is an
// empty collection.
type Collection struct {
	blocks []Block
}

// NewCollection returns a collection holding copies of blocks.
func NewCollection(blocks ...Block) Collection {
	return Collection{blocks: cloneBlocks(blocks)}
}

// Len returns the number of blocks.
func (c Collection) Len() int {
	return len(c.blocks)
}

// At returns a copy of the block at index i.
func (c Collection) At(i int) (Block, error) {
	if err := c.check(i); err != nil {
		return Block{}, err
	}
	return c.blocks[i].Clone(), nil
}

// Blocks returns a copy of the blocks in order.
func (c Collection) Blocks() []Block {
	return cloneBlocks(c.blocks)
}

// Add appends a fresh block built from the template t.
func (c Collection) Add(t BlockType) Collection {
	return c.Append(NewBlock(t))
}

// Append appends b.
func (c Collection) Append(b Block) Collection {
	out := c.clone(1)
	out.blocks = append(out.blocks, b.Clone())
	return out
}

// UpdateValue replaces the scalar value of the block at index i.
func (c Collection) UpdateValue(i int, v string) (Collection, error) {
	return c.edit(i, func(b *Block) error {
		if b.Kind.IsSetValued() {
			return &KindError{Op: "value update", Kind: b.Kind}
		}
		if b.Kind == KindLogic && !Connective(v).IsValid() {
			return invalid("value", "invalid connective %q", v)
		}
		b.Value = v
		return nil
	})
}

// UpdateOperator replaces the operator of the block at index i.
func (c Collection) UpdateOperator(i int, op Operator) (Collection, error) {
	return c.edit(i, func(b *Block) error {
		if !b.Kind.HasOperator() {
			return &KindError{Op: "operator update", Kind: b.Kind}
		}
		if !op.IsValid() {
			return invalid("operator", "invalid value %q", op)
		}
		b.Operator = op
		return nil
	})
}

// UpdateNegate sets the negation flag of the block at index i.
func (c Collection) UpdateNegate(i int, negate bool) (Collection, error) {
	return c.edit(i, func(b *Block) error {
		if !b.Kind.CanNegate() {
			return &KindError{Op: "negation", Kind: b.Kind}
		}
		b.Negate = negate
		return nil
	})
}

// ToggleValue inserts option into the values of the set-valued block at index
// i when absent, and removes every occurrence of it otherwise. The order of
// the remaining values is preserved and re-inserted values are appended, so
// toggling twice restores the block only when option was absent. On values
// holding duplicates (AddPlates keeps them) it leaves a single copy at the
// end. Plates inserted into a regnr block must pass IsPlate.
func (c Collection) ToggleValue(i int, option string) (Collection, error) {
	return c.edit(i, func(b *Block) error {
		if !b.Kind.IsSetValued() {
			return &KindError{Op: "toggle", Kind: b.Kind}
		}
		kept := make([]string, 0, len(b.Values)+1)
		for _, v := range b.Values {
			if v != option {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(b.Values) {
			if b.Kind == KindRegNr && !IsPlate(option) {
				return invalid("values", "invalid plate %q", option)
			}
			kept = append(kept, option)
		}
		b.Values = kept
		return nil
	})
}

// AddPlates validates free-text input with ValidatePlates and appends the
// valid plates to the regnr block at index i. Invalid tokens are returned for
// the caller to report; they never make the call fail.
func (c Collection) AddPlates(i int, input string) (Collection, []string, error) {
	var rejected []string
	out, err := c.edit(i, func(b *Block) error {
		if b.Kind != KindRegNr {
			return &KindError{Op: "plate entry", Kind: b.Kind}
		}
		valid, bad := ValidatePlates(input)
		b.Values = append(b.Values, valid...)
		rejected = bad
		return nil
	})
	if err != nil {
		return c, nil, err
	}
	return out, rejected, nil
}

// Remove deletes the block at index i; later blocks shift down by one.
func (c Collection) Remove(i int) (Collection, error) {
	if err := c.check(i); err != nil {
		return c, err
	}
	out := Collection{blocks: make([]Block, 0, len(c.blocks)-1)}
	for j, b := range c.blocks {
		if j != i {
			out.blocks = append(out.blocks, b.Clone())
		}
	}
	return out, nil
}

// Move relocates the block at from to index to. Blocks in between shift by
// one position; no block is modified.
func (c Collection) Move(from, to int) (Collection, error) {
	if err := c.check(from); err != nil {
		return c, err
	}
	if err := c.check(to); err != nil {
		return c, err
	}
	out := c.clone(0)
	if from == to {
		return out, nil
	}
	moved := out.blocks[from]
	if from < to {
		copy(out.blocks[from:to], out.blocks[from+1:to+1])
	} else {
		copy(out.blocks[to+1:from+1], out.blocks[to:from])
	}
	out.blocks[to] = moved
	return out, nil
}

// MarshalJSON encodes the collection as a JSON array of blocks.
func (c Collection) MarshalJSON() ([]byte, error) {
	if c.blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.blocks)
}

// UnmarshalJSON decodes a JSON array of blocks.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	c.blocks = blocks
	return nil
}

// Validate runs ValidateBlock on every block, prefixing field names with the
// block index.
func (c Collection) Validate() error {
	var ve ValidationError
	for i := range c.blocks {
		if err := ValidateBlock(&c.blocks[i]); err != nil {
			for _, fe := range err.(*ValidationError).Errors {
				ve.add(blockField(i, fe.Field), "%s", fe.Message)
			}
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func blockField(i int, field string) string {
	return "blocks[" + strconv.Itoa(i) + "]." + field
}

func (c Collection) check(i int) error {
	if i < 0 || i >= len(c.blocks) {
		return &IndexError{Index: i, Len: len(c.blocks)}
	}
	return nil
}

func (c Collection) edit(i int, fn func(b *Block) error) (Collection, error) {
	if err := c.check(i); err != nil {
		return c, err
	}
	out := c.clone(0)
	if err := fn(&out.blocks[i]); err != nil {
		return c, err
	}
	return out, nil
}

// clone deep-copies the blocks, reserving room for extra appends.
func (c Collection) clone(extra int) Collection {
	out := make([]Block, len(c.blocks), len(c.blocks)+extra)
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return Collection{blocks: out}
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
