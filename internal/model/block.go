package model

// Kind discriminates the block variants.
type Kind string

const (
	KindTag     Kind = "tag"
	KindField   Kind = "field"
	KindMulti   Kind = "multi"
	KindNumeric Kind = "numeric"
	KindCompare Kind = "compare"
	KindLogic   Kind = "logic"
	KindRegNr   Kind = "regnr"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindTag, KindField, KindMulti, KindNumeric, KindCompare, KindLogic, KindRegNr:
		return true
	}
	return false
}

// IsSetValued reports whether blocks of this kind carry Values instead of Value.
func (k Kind) IsSetValued() bool {
	return k == KindMulti || k == KindRegNr
}

// HasOperator reports whether blocks of this kind use a comparison operator.
func (k Kind) HasOperator() bool {
	return k == KindNumeric || k == KindCompare
}

// CanNegate reports whether blocks of this kind honour the Negate flag.
func (k Kind) CanNegate() bool {
	return k == KindField || k == KindMulti
}

// Operator is a comparison operator for numeric and compare blocks.
type Operator string

const (
	OpEq  Operator = "="
	OpNeq Operator = "!="
	OpLt  Operator = "<"
	OpGt  Operator = ">"
	OpLte Operator = "<="
	OpGte Operator = ">="
)

// Operators lists every operator in display order.
var Operators = []Operator{OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte}

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// IsValid checks whether the operator is a known value.
func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte:
		return true
	}
	return false
}

// Connective is a logical connective joining clauses.
type Connective string

const (
	And Connective = "and"
	Or  Connective = "or"
)

// String returns the string representation of the connective.
func (c Connective) String() string {
	return string(c)
}

// IsValid checks whether the connective is a known value.
func (c Connective) IsValid() bool {
	return c == And || c == Or
}

// RegNrField is the field name REGNR blocks serialize under.
const RegNrField = "REGNR"

// Block is one unit of an expression. Which fields are meaningful depends on Kind:
//
//	tag      Value (tag name)
//	field    Field, Value, Negate
//	multi    Field, Values, Negate
//	numeric  Field, Operator, Value (raw, unvalidated number)
//	compare  Field, Operator, Value
//	logic    Value ("and" or "or")
//	regnr    Values (validated plates)
type Block struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"` // registry template the block was created from
	Kind     Kind     `json:"kind"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Negate   bool     `json:"negate,omitempty"`
}

// IsEmpty reports whether the block has no value. Logic blocks are never empty.
func (b Block) IsEmpty() bool {
	switch {
	case b.Kind == KindLogic:
		return false
	case b.Kind.IsSetValued():
		return len(b.Values) == 0
	default:
		return b.Value == ""
	}
}

// Clone returns a copy of b that shares no memory with it.
func (b Block) Clone() Block {
	if b.Values != nil {
		b.Values = append([]string(nil), b.Values...)
	}
	return b
}

// NewBlock builds a fresh block from a template. Scalar blocks start with the
// template default (or "" / "0" for numeric), set-valued blocks start empty,
// the operator starts at "=" and negation is off.
func NewBlock(t BlockType) Block {
	b := Block{
		Type:     t.Name,
		Kind:     t.Kind,
		Field:    t.Field,
		Operator: OpEq,
	}
	if t.Kind == KindRegNr && b.Field == "" {
		b.Field = RegNrField
	}
	switch {
	case t.Kind.IsSetValued():
		b.Values = []string{}
	case t.Default != "":
		b.Value = t.Default
	case t.Kind == KindNumeric:
		b.Value = "0"
	case t.Kind == KindLogic:
		b.Value = string(And)
	}
	return b
}
