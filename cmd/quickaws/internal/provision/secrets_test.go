// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate_PasswordPolicy(t *testing.T) {
	gen := NewGenerator()
	policy := SecretPolicy{Length: 18, Alphabet: AlphabetPassword}

	for i := 0; i < 1000; i++ {
		value, err := gen.Generate(policy)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if len(value) != policy.Length {
			t.Fatalf("sample %d: length %d, want %d", i, len(value), policy.Length)
		}
		if !Satisfies(policy, value) {
			t.Fatalf("sample %d: %q fails its own policy", i, value)
		}
		for _, forbidden := range "0O1lI|" {
			if strings.ContainsRune(value, forbidden) {
				t.Fatalf("sample %d: %q contains ambiguous character %q", i, value, forbidden)
			}
		}
	}
}

func TestGenerate_IdentifierPolicy(t *testing.T) {
	gen := NewGenerator()
	policy := SecretPolicy{Length: 16, Alphabet: AlphabetIdentifier}

	for i := 0; i < 1000; i++ {
		value, err := gen.Generate(policy)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if len(value) != policy.Length {
			t.Fatalf("sample %d: length %d, want %d", i, len(value), policy.Length)
		}
		first := rune(value[0])
		if !strings.ContainsRune(lowerChars, first) {
			t.Fatalf("sample %d: %q does not start with a lowercase letter", i, value)
		}
		for _, r := range value {
			if strings.ContainsRune(symbolChars, r) {
				t.Fatalf("sample %d: identifier %q contains symbol %q", i, value, r)
			}
		}
	}
}

func TestGenerate_UniqueWithinRun(t *testing.T) {
	gen := NewGenerator()
	policy := SecretPolicy{Length: 18, Alphabet: AlphabetPassword}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		value, err := gen.Generate(policy)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if seen[value] {
			t.Fatalf("duplicate value %q", value)
		}
		seen[value] = true
	}
}

func TestGenerate_Exhaustion(t *testing.T) {
	// A length-1 password draws a single lowercase character, so the
	// keyspace is len(lowerChars). Draining it forces the unique-value
	// retry loop to give up deterministically.
	gen := NewGenerator()
	policy := SecretPolicy{Length: 1, Alphabet: AlphabetPassword}

	var exhausted bool
	for i := 0; i <= len(lowerChars); i++ {
		_, err := gen.Generate(policy)
		if err != nil {
			if !errors.Is(err, ErrGenerationExhausted) {
				t.Fatalf("expected ErrGenerationExhausted, got %v", err)
			}
			exhausted = true
			break
		}
	}
	if !exhausted {
		t.Fatal("generator produced more unique values than the keyspace holds")
	}
}

func TestGenerate_RejectsNonPositiveLength(t *testing.T) {
	gen := NewGenerator()
	if _, err := gen.Generate(SecretPolicy{Length: 0}); err == nil {
		t.Error("expected error for zero length")
	}
}

func TestSatisfies(t *testing.T) {
	password := SecretPolicy{Length: 16, Alphabet: AlphabetPassword}
	identifier := SecretPolicy{Length: 16, Alphabet: AlphabetIdentifier}

	cases := []struct {
		name   string
		policy SecretPolicy
		value  string
		want   bool
	}{
		{"valid password", password, "abcDEF234!-wxyzW", true},
		{"too short", password, "aB2!", false},
		{"missing symbol class", password, "abcDEF234abcDEF2", false},
		{"missing digit class", password, "abcDEF!-wabcDEFg", false},
		{"ambiguous character", password, "abcDEF234!-wxyz0", false},
		{"valid identifier", identifier, "adminq7RmKp2wXyz", true},
		{"identifier with symbol", identifier, "admin_q7RmKp2wXy", false},
		{"identifier starting uppercase", identifier, "AdminQ7RmKp2wXyz", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Satisfies(tc.policy, tc.value); got != tc.want {
				t.Errorf("Satisfies(%+v, %q) = %v, want %v", tc.policy, tc.value, got, tc.want)
			}
		})
	}
}
