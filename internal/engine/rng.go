package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

var (
	// ErrInvalidBound is returned when the upper bound is not positive.
	ErrInvalidBound = errors.New("rng: maxExclusive must be positive")
	// ErrEntropyUnavailable is returned when the secure random source fails.
	ErrEntropyUnavailable = errors.New("rng: entropy unavailable")
)

// Source produces indexes into a wheel.
type Source interface {
	// DrawIndex returns a value in [0, maxExclusive).
	DrawIndex(maxExclusive int) (int, error)
}

// SecureSource draws from crypto/rand.
//
// A 32-bit random value is reduced modulo maxExclusive. For bounds that do not
// divide 2^32 this leaves a bias below 1e-8 for wheel-sized bounds, which is
// accepted.
type SecureSource struct {
	// Reader defaults to crypto/rand.Reader.
	Reader io.Reader
}

// NewSecureSource returns a source backed by crypto/rand.
func NewSecureSource() *SecureSource {
	return &SecureSource{Reader: rand.Reader}
}

// DrawIndex implements Source.
func (s *SecureSource) DrawIndex(maxExclusive int) (int, error) {
	if maxExclusive <= 0 {
		return 0, ErrInvalidBound
	}
	r := s.Reader
	if r == nil {
		r = rand.Reader
	}
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	n := binary.BigEndian.Uint32(b[:])
	return int(uint64(n) % uint64(maxExclusive)), nil
}

// SeededSource is a deterministic source for replays. Each draw consumes one
// nonce: the HMAC-SHA256 of serverSeed over "clientSeed:nonce:round" yields
// bytes that are folded into a float in [0, 1) and scaled to the bound.
type SeededSource struct {
	mu         sync.Mutex
	serverSeed string
	clientSeed string
	nonce      uint64
}

// NewSeededSource creates a replay source starting at the given nonce.
func NewSeededSource(serverSeed, clientSeed string, nonce uint64) *SeededSource {
	return &SeededSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

// Nonce returns the nonce the next draw will use.
func (s *SeededSource) Nonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// DrawIndex implements Source.
func (s *SeededSource) DrawIndex(maxExclusive int) (int, error) {
	if maxExclusive <= 0 {
		return 0, ErrInvalidBound
	}
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	f := Float(s.serverSeed, s.clientSeed, nonce)
	idx := int(math.Floor(f * float64(maxExclusive)))
	if idx >= maxExclusive {
		idx = maxExclusive - 1
	}
	return idx, nil
}

// Float returns the first float of the byte stream for (serverSeed, clientSeed, nonce).
func Float(serverSeed, clientSeed string, nonce uint64) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", clientSeed, nonce, 0)
	sum := h.Sum(nil)
	return bytesToFloat([4]byte{sum[0], sum[1], sum[2], sum[3]})
}

// bytesToFloat folds 4 bytes into [0, 1) as sum(b[i] / 256^(i+1)).
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		result += float64(b) / math.Pow(256, float64(i+1))
	}
	return result
}
