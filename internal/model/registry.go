package model

import "fmt"

// BlockType describes a block template offered to the user.
type BlockType struct {
	Name    string   `json:"name" toml:"name" yaml:"name"`
	Label   string   `json:"label,omitempty" toml:"label" yaml:"label"`
	Kind    Kind     `json:"kind" toml:"kind" yaml:"kind"`
	Field   string   `json:"field,omitempty" toml:"field" yaml:"field"`
	Options []string `json:"options,omitempty" toml:"options" yaml:"options"` // allowed values; empty means free text
	Default string   `json:"default,omitempty" toml:"default" yaml:"default"`
}

// Allows reports whether v is an acceptable value for blocks of this type.
func (t BlockType) Allows(v string) bool {
	if len(t.Options) == 0 {
		return true
	}
	for _, o := range t.Options {
		if o == v {
			return true
		}
	}
	return false
}

// CheckValue returns a *ValidationError when v is not one of t's options.
func (t BlockType) CheckValue(v string) error {
	if t.Allows(v) {
		return nil
	}
	return invalid("value", "%q is not an allowed %s value", v, t.Name)
}

// Registry is an ordered table of block types keyed by name.
type Registry struct {
	types []BlockType
	index map[string]int
}

// NewRegistry builds a registry from types. Names must be unique and every
// type must pass ValidateBlockType.
func NewRegistry(types []BlockType) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(types))}
	for _, t := range types {
		if err := ValidateBlockType(&t); err != nil {
			return nil, fmt.Errorf("block type %q: %w", t.Name, err)
		}
		if _, dup := r.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate block type %q", t.Name)
		}
		r.index[t.Name] = len(r.types)
		r.types = append(r.types, t)
	}
	return r, nil
}

// Lookup returns the block type with the given name.
func (r *Registry) Lookup(name string) (BlockType, bool) {
	i, ok := r.index[name]
	if !ok {
		return BlockType{}, false
	}
	return r.types[i], true
}

// Types returns the block types in registry order.
func (r *Registry) Types() []BlockType {
	out := make([]BlockType, len(r.types))
	copy(out, r.types)
	return out
}

// Vehicle types offered by the built-in registry and the wizard.
const (
	VehiclePersonbil  = "Personbil"
	VehicleLastbil    = "Lastbil"
	VehicleBuss       = "Buss"
	VehicleMotorcykel = "Motorcykel"
	VehicleSlap       = "Släp"
)

// VehicleTypes lists the vehicle tags in display order.
var VehicleTypes = []string{VehiclePersonbil, VehicleLastbil, VehicleBuss, VehicleMotorcykel, VehicleSlap}

// FuelTypes lists the DRIVMEDEL values.
var FuelTypes = []string{"EL", "BENSIN", "DIESEL", "HYBRID", "GAS", "ETANOL"}

// BodyTypes lists the KAROSS values used for trailers.
var BodyTypes = []string{"SKAP", "FLAK", "TANK", "KYL", "CONTAINER"}

// UsageTypes lists the ANVANDNING values.
var UsageTypes = []string{"PRIVAT", "TAXI", "UTHYRNING", "SKOLA", "YRKESTRAFIK"}

// InTrafficValues lists the ITRAFIK values.
var InTrafficValues = []string{"JA", "NEJ"}

// DefaultTypes is the built-in block vocabulary.
func DefaultTypes() []BlockType {
	types := make([]BlockType, 0, 16)
	for _, v := range VehicleTypes {
		types = append(types, BlockType{Name: "tag:" + v, Label: v, Kind: KindTag, Default: v, Options: []string{v}})
	}
	return append(types,
		BlockType{Name: "drivmedel", Label: "Drivmedel", Kind: KindField, Field: "DRIVMEDEL", Options: FuelTypes},
		BlockType{Name: "drivmedel-multi", Label: "Drivmedel (flera)", Kind: KindMulti, Field: "DRIVMEDEL", Options: FuelTypes},
		BlockType{Name: "kaross", Label: "Kaross", Kind: KindField, Field: "KAROSS", Options: BodyTypes},
		BlockType{Name: "itrafik", Label: "I trafik", Kind: KindField, Field: "ITRAFIK", Options: InTrafficValues},
		BlockType{Name: "anvandning", Label: "Användning", Kind: KindField, Field: "ANVANDNING", Options: UsageTypes},
		BlockType{Name: "farg", Label: "Färg", Kind: KindField, Field: "FARG"},
		BlockType{Name: "totalvikt", Label: "Totalvikt", Kind: KindNumeric, Field: "TOTALVIKTSANKT"},
		BlockType{Name: "modellar", Label: "Modellår", Kind: KindNumeric, Field: "MODELLAR"},
		BlockType{Name: "effekt", Label: "Effekt", Kind: KindNumeric, Field: "EFFEKT"},
		BlockType{Name: "marke", Label: "Märke", Kind: KindCompare, Field: "MARKE"},
		BlockType{Name: "logic", Label: "Logik", Kind: KindLogic, Options: []string{string(And), string(Or)}},
		BlockType{Name: "regnr", Label: "Registreringsnummer", Kind: KindRegNr, Field: RegNrField},
	)
}

// DefaultRegistry returns a registry holding DefaultTypes.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultTypes())
	if err != nil {
		panic(err)
	}
	return r
}
