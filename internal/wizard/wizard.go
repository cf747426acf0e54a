// Package wizard implements the guided, step-by-step expression builder.
//
// The wizard asks for a vehicle type, whether the vehicle is in traffic, then
// either the fuel (motor vehicles) or the body type (trailers), an optional
// usage and an optional plate. The collected answers become a block
// collection rendered in joined mode.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/model"
)

// Step names one question of the wizard.
type Step string

const (
	StepVehicle   Step = "vehicle"
	StepInTraffic Step = "in_traffic"
	StepFuel      Step = "fuel"
	StepBody      Step = "body"
	StepUsage     Step = "usage"
	StepPlate     Step = "plate"
	StepDone      Step = "done"
)

// String returns the string representation of the step.
func (s Step) String() string {
	return string(s)
}

// Optional reports whether the step may be skipped.
func (s Step) Optional() bool {
	return s == StepUsage || s == StepPlate
}

// Prompt returns the question shown for the step.
func (s Step) Prompt() string {
	switch s {
	case StepVehicle:
		return "Fordonstyp"
	case StepInTraffic:
		return "I trafik?"
	case StepFuel:
		return "Drivmedel"
	case StepBody:
		return "Kaross"
	case StepUsage:
		return "Användning (valfritt)"
	case StepPlate:
		return "Registreringsnummer (valfritt)"
	}
	return ""
}

// Options returns the allowed answers for the step; nil means free text.
func (s Step) Options() []string {
	switch s {
	case StepVehicle:
		return model.VehicleTypes
	case StepInTraffic:
		return model.InTrafficValues
	case StepFuel:
		return model.FuelTypes
	case StepBody:
		return model.BodyTypes
	case StepUsage:
		return model.UsageTypes
	}
	return nil
}

// field is the expression field an answer is written to.
func (s Step) field() string {
	switch s {
	case StepInTraffic:
		return "ITRAFIK"
	case StepFuel:
		return "DRIVMEDEL"
	case StepBody:
		return "KAROSS"
	case StepUsage:
		return "ANVANDNING"
	case StepPlate:
		return model.RegNrField
	}
	return ""
}

var (
	// ErrFinished is returned when answering a wizard that is already done.
	ErrFinished = errors.New("wizard already finished")
	// ErrRequired is returned when skipping a mandatory step.
	ErrRequired = errors.New("step is required")
	// ErrAtStart is returned by Back on the first step.
	ErrAtStart = errors.New("already at first step")
)

// Wizard is an immutable wizard state. The zero value is not usable; start
// with New.
type Wizard struct {
	step    Step
	answers map[Step]string
	history []Step
}

// New returns a wizard positioned at the first step.
func New() Wizard {
	return Wizard{step: StepVehicle, answers: map[Step]string{}}
}

// Current returns the step awaiting an answer.
func (w Wizard) Current() Step {
	return w.step
}

// Done reports whether every applicable step has been visited.
func (w Wizard) Done() bool {
	return w.step == StepDone
}

// Answer returns the recorded answer for step s.
func (w Wizard) Answer(s Step) (string, bool) {
	v, ok := w.answers[s]
	return v, ok
}

// Answers returns a copy of all recorded answers.
func (w Wizard) Answers() map[Step]string {
	out := make(map[Step]string, len(w.answers))
	for k, v := range w.answers {
		out[k] = v
	}
	return out
}

// Respond records v as the answer to the current step and advances. An empty
// answer on an optional step behaves like Skip.
func (w Wizard) Respond(v string) (Wizard, error) {
	if w.Done() {
		return w, ErrFinished
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return w.Skip()
	}
	if w.step == StepPlate {
		v = strings.ToUpper(v)
		if !model.IsPlate(v) {
			return w, &model.ValidationError{Errors: []model.FieldError{{
				Field:   string(StepPlate),
				Message: model.InvalidPlatesMessage([]string{v}),
			}}}
		}
	} else if opts := w.step.Options(); opts != nil && !contains(opts, v) {
		return w, &model.ValidationError{Errors: []model.FieldError{{
			Field:   string(w.step),
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(opts, ", "), v),
		}}}
	}

	out := w.clone()
	out.answers[w.step] = v
	out.history = append(out.history, w.step)
	out.step = out.next(w.step)
	return out, nil
}

// Skip advances past an optional step without answering it.
func (w Wizard) Skip() (Wizard, error) {
	if w.Done() {
		return w, ErrFinished
	}
	if !w.step.Optional() {
		return w, fmt.Errorf("%s: %w", w.step, ErrRequired)
	}
	out := w.clone()
	delete(out.answers, w.step)
	out.history = append(out.history, w.step)
	out.step = out.next(w.step)
	return out, nil
}

// Back returns to the previously visited step, discarding its answer and any
// answer given after it.
func (w Wizard) Back() (Wizard, error) {
	if len(w.history) == 0 {
		return w, ErrAtStart
	}
	out := w.clone()
	out.step = out.history[len(out.history)-1]
	out.history = out.history[:len(out.history)-1]
	kept := make(map[Step]string, len(out.history))
	for _, s := range out.history {
		if v, ok := out.answers[s]; ok {
			kept[s] = v
		}
	}
	out.answers = kept
	return out, nil
}

// Collection turns the non-empty answers into blocks, in step order.
func (w Wizard) Collection() model.Collection {
	var c model.Collection
	if v := w.answers[StepVehicle]; v != "" {
		c = c.Append(model.Block{Type: "tag:" + v, Kind: model.KindTag, Value: v, Operator: model.OpEq})
	}
	for _, s := range []Step{StepInTraffic, StepFuel, StepBody, StepUsage} {
		if v := w.answers[s]; v != "" {
			c = c.Append(model.Block{Type: string(s), Kind: model.KindField, Field: s.field(), Value: v, Operator: model.OpEq})
		}
	}
	if v := w.answers[StepPlate]; v != "" {
		c = c.Append(model.Block{Type: "regnr", Kind: model.KindRegNr, Field: model.RegNrField, Values: []string{v}, Operator: model.OpEq})
	}
	return c
}

// Expression renders Collection in joined mode.
func (w Wizard) Expression() string {
	return codegen.Serialize(w.Collection(), model.ModeJoined)
}

// Replay feeds answers, keyed by step name, through a new wizard until it is
// done. Optional steps without an answer are skipped. Answers for steps that
// are not on the resulting path are rejected.
func Replay(answers map[string]string) (Wizard, error) {
	w := New()
	used := map[string]bool{}
	for !w.Done() {
		v, ok := answers[string(w.step)]
		var err error
		if ok {
			used[string(w.step)] = true
			w, err = w.Respond(v)
		} else {
			w, err = w.Skip()
		}
		if err != nil {
			return w, err
		}
	}
	var ve model.ValidationError
	for k := range answers {
		if !used[k] {
			ve.Errors = append(ve.Errors, model.FieldError{Field: k, Message: "not asked for this vehicle type"})
		}
	}
	if ve.HasErrors() {
		return w, &ve
	}
	return w, nil
}

func (w Wizard) next(s Step) Step {
	switch s {
	case StepVehicle:
		return StepInTraffic
	case StepInTraffic:
		if w.answers[StepVehicle] == model.VehicleSlap {
			return StepBody
		}
		return StepFuel
	case StepFuel, StepBody:
		return StepUsage
	case StepUsage:
		return StepPlate
	}
	return StepDone
}

func (w Wizard) clone() Wizard {
	out := Wizard{
		step:    w.step,
		answers: make(map[Step]string, len(w.answers)+1),
		history: append([]Step(nil), w.history...),
	}
	for k, v := range w.answers {
		out.answers[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
