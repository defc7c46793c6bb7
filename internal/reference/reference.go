// Package reference generates user-facing booking references of the form DDMMYY-XXXXX.
package reference

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"time"

	"daimaescape/internal/models"
)

const (
	Alphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	SuffixLength       = 5
	DefaultMaxAttempts = 20
	dateStampLayout    = "020106"
)

var pattern = regexp.MustCompile(`^\d{6}-[A-Z0-9]{5}$`)

// Valid reports whether ref has the DDMMYY-XXXXX shape.
func Valid(ref string) bool {
	return pattern.MatchString(ref)
}

// TakenFunc reports whether a reference is already in use.
type TakenFunc func(ctx context.Context, ref string) (bool, error)

// Generator draws random references and checks them for uniqueness.
type Generator struct {
	MaxAttempts int
	Location    *time.Location
	Rand        io.Reader
}

// NewGenerator returns a generator stamping dates in loc.
func NewGenerator(maxAttempts int, loc *time.Location) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{MaxAttempts: maxAttempts, Location: loc, Rand: rand.Reader}
}

// Format builds a reference from the creation time and a suffix.
func (g *Generator) Format(now time.Time, suffix string) string {
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s-%s", now.In(loc).Format(dateStampLayout), suffix)
}

// Candidate draws one reference without checking uniqueness.
func (g *Generator) Candidate(now time.Time) (string, error) {
	suffix, err := g.suffix()
	if err != nil {
		return "", err
	}
	return g.Format(now, suffix), nil
}

// Generate returns a reference that taken reports as free. It gives up with
// models.ErrReferenceGenerationExhausted after MaxAttempts collisions.
func (g *Generator) Generate(ctx context.Context, now time.Time, taken TakenFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ref, err := g.Candidate(now)
		if err != nil {
			return "", fmt.Errorf("draw reference: %w", err)
		}
		exists, err := taken(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference %s: %w", ref, err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", models.ErrReferenceGenerationExhausted
}

// suffix draws SuffixLength characters uniformly from Alphabet using rejection sampling.
func (g *Generator) suffix() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	const limit = 256 - 256%len(Alphabet)
	out := make([]byte, 0, SuffixLength)
	buf := make([]byte, SuffixLength*2)
	for len(out) < SuffixLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == SuffixLength {
				break
			}
		}
	}
	return string(out), nil
}
