// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"
)

// Test binaries run without a controlling terminal, so the prompt layer
// must refuse rather than hang.

func TestSelectOne_NoTerminal(t *testing.T) {
	if Interactive() {
		t.Skip("test requires non-TTY stdin")
	}
	_, err := SelectOne("pick one", []Choice{{Value: "a", Label: "A"}})
	if !errors.Is(err, ErrNoTerminal) {
		t.Errorf("expected ErrNoTerminal, got %v", err)
	}
}

func TestConfirm_NoTerminal(t *testing.T) {
	if Interactive() {
		t.Skip("test requires non-TTY stdin")
	}
	_, err := Confirm("proceed?")
	if !errors.Is(err, ErrNoTerminal) {
		t.Errorf("expected ErrNoTerminal, got %v", err)
	}
}
