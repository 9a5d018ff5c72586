package board

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum returns a SHA-256 hash of the deterministic representation of the
// position. Two boards have the same checksum iff they are Equal.
func (b *Board) Checksum() string {
	sum := sha256.Sum256([]byte(b.canonical()))
	return hex.EncodeToString(sum[:])
}

// canonical builds a representation that only depends on the position.
func (b *Board) canonical() string {
	var buf bytes.Buffer

	for p, pt := range b.points {
		if pt.Count == 0 {
			continue
		}
		buf.WriteString(fmt.Sprintf("POINT:%d|%s|%d\n", p, pt.Color, pt.Count))
	}
	for _, c := range []Color{White, Black} {
		buf.WriteString(fmt.Sprintf("PENDING:%s|%d\n", c, b.Pending(c)))
		buf.WriteString(fmt.Sprintf("REMOVED:%s|%d\n", c, b.Removed(c)))
	}

	return buf.String()
}
