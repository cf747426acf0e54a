package model

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// invalid returns a single-field *ValidationError.
func invalid(field, format string, args ...any) error {
	var ve ValidationError
	ve.add(field, format, args...)
	return &ve
}

var (
	// ErrIndexOutOfRange is matched by every *IndexError.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrNotApplicable is matched by every *KindError.
	ErrNotApplicable = errors.New("operation not applicable to block kind")
)

// IndexError reports a block index outside the collection.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("block index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndexOutOfRange }

// KindError reports an edit that the block's kind does not support.
type KindError struct {
	Op   string
	Kind Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s not supported by %s blocks", e.Op, e.Kind)
}

func (e *KindError) Is(target error) bool { return target == ErrNotApplicable }

// ValidateBlockType checks a registry entry.
func ValidateBlockType(t *BlockType) error {
	var ve ValidationError

	if strings.TrimSpace(t.Name) == "" {
		ve.add("name", "is required")
	}
	if !t.Kind.IsValid() {
		ve.add("kind", "invalid value %q", t.Kind)
	}
	switch t.Kind {
	case KindField, KindMulti, KindNumeric, KindCompare:
		if strings.TrimSpace(t.Field) == "" {
			ve.add("field", "is required for %s blocks", t.Kind)
		}
	case KindLogic:
		for _, o := range t.Options {
			if !Connective(o).IsValid() {
				ve.add("options", "invalid connective %q", o)
			}
		}
	case KindRegNr:
		if t.Default != "" {
			ve.add("default", "must be empty for regnr blocks")
		}
	}
	if t.Default != "" && !t.Allows(t.Default) {
		ve.add("default", "%q is not one of the options", t.Default)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateBlock checks a block for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the block is valid.
func ValidateBlock(b *Block) error {
	var ve ValidationError

	if !b.Kind.IsValid() {
		ve.add("kind", "invalid value %q", b.Kind)
	}
	if b.Operator != "" && !b.Operator.IsValid() {
		ve.add("operator", "invalid value %q", b.Operator)
	}
	switch b.Kind {
	case KindField, KindMulti, KindNumeric, KindCompare:
		if strings.TrimSpace(b.Field) == "" {
			ve.add("field", "is required for %s blocks", b.Kind)
		}
	case KindLogic:
		if !Connective(b.Value).IsValid() {
			ve.add("value", "invalid connective %q", b.Value)
		}
	case KindRegNr:
		for _, p := range b.Values {
			if !IsPlate(p) {
				ve.add("values", "invalid plate %q", p)
			}
		}
	}
	if b.Negate && b.Kind.IsValid() && !b.Kind.CanNegate() {
		ve.add("negate", "not supported by %s blocks", b.Kind)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
