// Package roomkey generates memorable room keys for callers who do not bring
// their own.
package roomkey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Generate returns a random key of the form adjective-animal-thing-dish,
// e.g. "cozy-otter-lantern-ramen".
func Generate() (string, error) {
	lists := [][]string{adjectives, animals, things, dishes}

	words := make([]string, len(lists))
	for i, list := range lists {
		idx, err := randomIndex(len(list))
		if err != nil {
			return "", fmt.Errorf("generate room key: %w", err)
		}
		words[i] = list[idx]
	}
	return strings.Join(words, "-"), nil
}

// randomIndex returns a cryptographically secure random index for a slice of
// the given length.
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
