package ingest

import "crypto/rand"

// idAlphabet excludes 0/O/I/l lookalikes.
const idAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const idLength = 12

// NewLayerID returns a fresh "L"-prefixed identifier. IDs key both the
// catalog row and the per-ingestion temp namespace, so collisions across
// concurrent ingestions matter more than guessability.
func NewLayerID() string {
	return newID('L')
}

// NewSourceID returns a fresh "S"-prefixed identifier for remote source
// records.
func NewSourceID() string {
	return newID('S')
}

func newID(prefix byte) string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, idLength+1)
	out[0] = prefix
	for i, b := range buf {
		out[i+1] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}
