// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/awnumar/memguard"
)

// Character classes. Visually ambiguous characters (0/O, 1/l/I, |) are
// excluded so credentials survive being read off a terminal or a printed
// report.
const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "-_!@#%+="
)

// maxGenerateAttempts bounds the regenerate-on-collision loop. With the
// default policies the keyspace is astronomically larger than any run's
// secret count, so hitting the bound means the policy alphabet is too
// small for the requested uniqueness.
const maxGenerateAttempts = 24

// Generator produces cryptographically strong credentials satisfying a
// SecretPolicy. Values generated by one Generator are unique among
// themselves; create one Generator per provisioning run.
//
// Generator is not safe for concurrent use. The pipeline is strictly
// sequential, so it does not need to be.
type Generator struct {
	rand io.Reader
	seen map[string]struct{}
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader, seen: make(map[string]struct{})}
}

// Generate produces a value satisfying the policy that has not been
// produced by this Generator before. Fails with ErrGenerationExhausted
// if no unique value is found within the retry budget.
func (g *Generator) Generate(policy SecretPolicy) (string, error) {
	if policy.Length <= 0 {
		return "", fmt.Errorf("secret policy length must be positive, got %d", policy.Length)
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := g.generateOnce(policy)
		if err != nil {
			return "", err
		}
		if _, dup := g.seen[value]; dup {
			continue
		}
		g.seen[value] = struct{}{}
		return value, nil
	}
	return "", fmt.Errorf("%w: no unique %s value of length %d after %d attempts",
		ErrGenerationExhausted, policy.Alphabet, policy.Length, maxGenerateAttempts)
}

func (g *Generator) generateOnce(policy SecretPolicy) (string, error) {
	buf := make([]byte, 0, policy.Length)

	var err error
	switch policy.Alphabet {
	case AlphabetIdentifier:
		buf, err = g.identifierBytes(buf, policy.Length)
	default:
		buf, err = g.passwordBytes(buf, policy.Length)
	}
	if err != nil {
		return "", err
	}

	value := string(buf)
	// The string above is the only copy that leaves this function; scrub
	// the working buffer.
	memguard.WipeBytes(buf)
	return value, nil
}

// passwordBytes fills buf with one character from each required class and
// the remainder from the full alphabet, then shuffles.
func (g *Generator) passwordBytes(buf []byte, length int) ([]byte, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	full := lowerChars + upperChars + digitChars + symbolChars

	for _, class := range classes {
		if len(buf) == length {
			break
		}
		c, err := g.pick(class)
		if err != nil {
			return nil, err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := g.pick(full)
		if err != nil {
			return nil, err
		}
		buf = append(buf, c)
	}
	if err := g.shuffle(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// identifierBytes fills buf with a lowercase letter followed by letters
// and digits. No shuffle: the leading letter is a deliberate constraint
// (database usernames must not start with a digit).
func (g *Generator) identifierBytes(buf []byte, length int) ([]byte, error) {
	alnum := lowerChars + upperChars + digitChars

	c, err := g.pick(lowerChars)
	if err != nil {
		return nil, err
	}
	buf = append(buf, c)
	for len(buf) < length {
		c, err := g.pick(alnum)
		if err != nil {
			return nil, err
		}
		buf = append(buf, c)
	}
	return buf, nil
}

func (g *Generator) pick(alphabet string) (byte, error) {
	i, err := g.intn(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func (g *Generator) shuffle(buf []byte) error {
	for i := len(buf) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.rand, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("reading random source: %w", err)
	}
	return int(v.Int64()), nil
}

// Satisfies reports whether value meets the policy: long enough, drawn
// entirely from the policy's alphabet, and covering every required
// character class. Used by the reconciler to decide whether a prior
// secret may be preserved.
func Satisfies(policy SecretPolicy, value string) bool {
	if len(value) < policy.Length {
		return false
	}
	switch policy.Alphabet {
	case AlphabetIdentifier:
		alnum := lowerChars + upperChars + digitChars
		if !strings.ContainsRune(lowerChars, rune(value[0])) {
			return false
		}
		for _, r := range value {
			if !strings.ContainsRune(alnum, r) {
				return false
			}
		}
		return true
	default:
		full := lowerChars + upperChars + digitChars + symbolChars
		for _, r := range value {
			if !strings.ContainsRune(full, r) {
				return false
			}
		}
		for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
			if !strings.ContainsAny(value, class) {
				return false
			}
		}
		return true
	}
}
