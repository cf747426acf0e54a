package model

import "time"

// Mode selects how a collection is serialized.
type Mode string

const (
	// ModeJoined joins clauses with an implicit connective; logic blocks are ignored.
	ModeJoined Mode = "joined"
	// ModeLiteral joins clauses with a space; logic blocks supply the connectives.
	ModeLiteral Mode = "literal"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks whether the mode is a known value.
func (m Mode) IsValid() bool {
	return m == ModeJoined || m == ModeLiteral
}

// Draft is a named, saved block collection.
type Draft struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Mode      Mode       `json:"mode"`
	Blocks    Collection `json:"blocks"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DraftFilter holds criteria for listing drafts.
type DraftFilter struct {
	Search    string `json:"search,omitempty"` // case-insensitive match on name
	CreatedBy string `json:"created_by,omitempty"`
	Sort      string `json:"sort,omitempty"` // name, created_at or updated_at; "-" prefix for descending
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ValidateDraft checks a Draft for constraint violations.
func ValidateDraft(d *Draft) error {
	var ve ValidationError

	if d.Name == "" {
		ve.add("name", "is required")
	} else if len([]rune(d.Name)) > 200 {
		ve.add("name", "must be 200 characters or fewer")
	}
	if !d.Mode.IsValid() {
		ve.add("mode", "invalid value %q", d.Mode)
	}
	if err := d.Blocks.Validate(); err != nil {
		ve.Errors = append(ve.Errors, err.(*ValidationError).Errors...)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
