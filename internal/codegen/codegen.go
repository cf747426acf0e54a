// Package codegen turns a block collection into its textual predicate expression.
package codegen

import (
	"strings"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// Options control serialization.
type Options struct {
	Mode model.Mode
	// Joiner is the connective placed between clauses in joined mode.
	// Zero means "and".
	Joiner model.Connective
}

// Serialize renders c in the given mode with the default joiner.
func Serialize(c model.Collection, mode model.Mode) string {
	return Options{Mode: mode}.Serialize(c)
}

// Serialize renders c. Blocks with an empty value are skipped. In joined mode
// clauses are separated by " <joiner> " and logic blocks contribute nothing;
// in literal mode every clause, logic tokens included, is separated by a
// single space. Values are embedded verbatim.
func (o Options) Serialize(c model.Collection) string {
	mode := o.Mode
	if mode == "" {
		mode = model.ModeJoined
	}
	joiner := o.Joiner
	if joiner == "" {
		joiner = model.And
	}

	var clauses []string
	for _, b := range c.Blocks() {
		if mode == model.ModeJoined && b.Kind == model.KindLogic {
			continue
		}
		if s, ok := Clause(b); ok {
			clauses = append(clauses, s)
		}
	}

	sep := " "
	if mode == model.ModeJoined {
		sep = " " + joiner.String() + " "
	}
	return strings.Join(clauses, sep)
}

// Clause renders a single block. It reports false for empty blocks and
// blocks of unknown kind.
func Clause(b model.Block) (string, bool) {
	if b.IsEmpty() {
		return "", false
	}
	switch b.Kind {
	case model.KindTag:
		return "#" + b.Value + "#", true
	case model.KindField:
		return b.Field + membership(b.Negate) + valueList([]string{b.Value}), true
	case model.KindMulti:
		return b.Field + membership(b.Negate) + valueList(b.Values), true
	case model.KindRegNr:
		field := b.Field
		if field == "" {
			field = model.RegNrField
		}
		return field + membership(false) + valueList(b.Values), true
	case model.KindNumeric:
		return b.Field + " " + operator(b.Operator).String() + " " + b.Value, true
	case model.KindCompare:
		return b.Field + " " + operator(b.Operator).String() + " '" + b.Value + "'", true
	case model.KindLogic:
		return b.Value, b.Value != ""
	}
	return "", false
}

func membership(negate bool) string {
	if negate {
		return " !in"
	}
	return " in"
}

func valueList(values []string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\'')
		sb.WriteString(v)
		sb.WriteByte('\'')
	}
	sb.WriteByte(')')
	return sb.String()
}

func operator(op model.Operator) model.Operator {
	if op == "" {
		return model.OpEq
	}
	return op
}
