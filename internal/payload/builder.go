// Package payload builds the outbound request description for one identifier.
package payload

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	mrand "math/rand/v2"
	"strings"
	"time"
)

// NonceBytes is the number of random bytes behind each nonce (12 hex chars).
const NonceBytes = 6

// MinUserAgents is the smallest pool the builder rotates through.
const MinUserAgents = 3

// DefaultUserAgents is the browser signature pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Linux; Android 15; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Mobile Safari/537.36",
}

// Request is the ephemeral description of one POST. It is built fresh for
// every dispatch and never reused.
type Request struct {
	Identifier      string
	TimestampMillis int64
	Nonce           string
	UserAgent       string
}

type wireBody struct {
	RefID     string `json:"refid"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// Body returns the JSON wire body {"refid","timestamp","nonce"}.
func (r Request) Body() ([]byte, error) {
	return json.Marshal(wireBody{
		RefID:     r.Identifier,
		Timestamp: r.TimestampMillis,
		Nonce:     r.Nonce,
	})
}

// Randomness supplies the random parts of a request. Implementations must be
// safe for concurrent use.
type Randomness interface {
	// Nonce returns a lowercase hex token.
	Nonce() string
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

type systemRandomness struct{}

// SystemRandomness uses crypto/rand for nonces and math/rand/v2 for picks.
func SystemRandomness() Randomness { return systemRandomness{} }

func (systemRandomness) Nonce() string {
	buf := make([]byte, NonceBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (systemRandomness) Intn(n int) int {
	return mrand.IntN(n)
}

// Builder constructs Requests. The zero value is not usable; call NewBuilder.
type Builder struct {
	agents []string
	random Randomness
	now    func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithRandomness overrides the randomness provider.
func WithRandomness(r Randomness) Option {
	return func(b *Builder) {
		if r != nil {
			b.random = r
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a Builder picking user agents from agents, falling back
// to DefaultUserAgents when agents has fewer than MinUserAgents usable entries.
func NewBuilder(agents []string, opts ...Option) *Builder {
	pool := make([]string, 0, len(agents))
	for _, agent := range agents {
		if trimmed := strings.TrimSpace(agent); trimmed != "" {
			pool = append(pool, trimmed)
		}
	}
	if len(pool) < MinUserAgents {
		pool = append(pool[:0], DefaultUserAgents...)
	}

	b := &Builder{
		agents: pool,
		random: SystemRandomness(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UserAgents returns a copy of the pool.
func (b *Builder) UserAgents() []string {
	return append([]string(nil), b.agents...)
}

// Build returns a fresh Request for identifier. The timestamp is taken now,
// not at send time.
func (b *Builder) Build(identifier string) Request {
	return Request{
		Identifier:      strings.TrimSpace(identifier),
		TimestampMillis: b.now().UnixMilli(),
		Nonce:           b.random.Nonce(),
		UserAgent:       b.agents[b.random.Intn(len(b.agents))],
	}
}
