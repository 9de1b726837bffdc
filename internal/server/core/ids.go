package core

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var nonSlug = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// edgeNamespace scopes deterministic edge identifiers.
var edgeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kg:edge"))

// Slug derives a node id from a concept name: lowercase, runs of characters
// that are neither letters nor digits collapsed to '_', trimmed. Letters
// outside ASCII are kept, so "Quadratic Formula" becomes "quadratic_formula"
// and "Café" becomes "café". Returns "" when nothing usable remains.
func Slug(concept string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(concept), "_")
	return strings.Trim(s, "_")
}

// EdgeID returns the stable identifier of the (source, relation, target)
// triple. Adding the same relationship twice yields the same id.
func EdgeID(source, target string, relation RelationType) string {
	return uuid.NewSHA1(edgeNamespace, []byte(source+"|"+string(relation)+"|"+target)).String()
}
