// Package idgen provides short, URL-safe unique IDs for drafts and blocks,
// backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DraftPrefix is prepended to every draft ID.
var DraftPrefix = "kb-"

// BlockPrefix is prepended to every block ID.
var BlockPrefix = "blk-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Generate returns a new draft ID.
func Generate() (string, error) {
	return GenerateWithPrefix(DraftPrefix)
}

// Block returns a new block ID.
func Block() (string, error) {
	return GenerateWithPrefix(BlockPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
