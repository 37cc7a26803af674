// Package idgen generates short random connection identifiers, mirroring
// the prefix+length+collision-set shape of the original C++ id generator
// (generate_id(prefix, length, existing)).
package idgen

import (
	"crypto/rand"
	"sync"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns a random string of length drawn from alphabet.
func RandomString(length int) string {
	buf := make([]byte, length)
	idx := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on any supported platform does not fail in
		// practice; a zeroed buffer still yields a valid, if
		// less-random, id rather than panicking mid-accept-loop.
		buf = make([]byte, length)
	}
	for i, b := range buf {
		idx[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(idx)
}

// Set is a mutex-guarded collision set used to regenerate ids that have
// already been issued, synchronized independently of whatever registry
// the generated ids end up keying.
type Set struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewSet returns an empty id set.
func NewSet() *Set {
	return &Set{seen: make(map[string]bool)}
}

// Generate returns prefix + a length-character random suffix not already
// present in the set, regenerating the suffix on collision, and records
// the result before returning it.
func (s *Set) Generate(prefix string, length int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := prefix + RandomString(length)
		if !s.seen[id] {
			s.seen[id] = true
			return id
		}
	}
}

// Release removes id from the set, allowing it to be reissued later.
func (s *Set) Release(id string) {
	s.mu.Lock()
	delete(s.seen, id)
	s.mu.Unlock()
}
