// Package idgen generates time-ordered 63-bit identifiers for media files and video frames.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

const randomBits = 20

// Generator produces ids of the form (unixMillis << 20) | random20.
// Ids from one Generator are strictly increasing even when the clock stalls or goes backwards.
type Generator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// New returns a Generator using the wall clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// Next returns the next id.
func (g *Generator) Next() int64 {
	id := g.now().UnixMilli()<<randomBits | randomLow()

	g.mu.Lock()
	defer g.mu.Unlock()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

func randomLow() int64 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint32(b[:]) & (1<<randomBits - 1))
}

var defaultGenerator = New()

// Next returns the next id from the process-wide generator.
func Next() int64 {
	return defaultGenerator.Next()
}
