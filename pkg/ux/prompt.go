// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNoTerminal is returned when an interactive prompt is requested but
// stdin is not a terminal (piped input, CI, cloud-init).
var ErrNoTerminal = errors.New("interactive prompt requires a terminal")

// Choice is one selectable entry of an interactive menu.
type Choice struct {
	// Value is returned when the entry is selected.
	Value string

	// Label is the short name shown in the menu.
	Label string

	// Description is shown alongside the label.
	Description string
}

// Interactive reports whether stdin is attached to a terminal.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// SelectOne presents a single-select menu and returns the chosen value.
// Fails with ErrNoTerminal when stdin is not a terminal, so callers can
// fall back to flags or environment variables.
func SelectOne(title string, choices []Choice) (string, error) {
	if !Interactive() {
		return "", ErrNoTerminal
	}

	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		label := c.Label
		if c.Description != "" {
			label = fmt.Sprintf("%-8s %s", c.Label, Styles.Muted.Render(c.Description))
		}
		options = append(options, huh.NewOption(label, c.Value))
	}

	var selected string
	err := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&selected).
		Run()
	if err != nil {
		return "", fmt.Errorf("profile selection: %w", err)
	}
	return selected, nil
}

// Confirm asks a yes/no question and returns the answer.
func Confirm(title string) (bool, error) {
	if !Interactive() {
		return false, ErrNoTerminal
	}

	var answer bool
	err := huh.NewConfirm().
		Title(title).
		Value(&answer).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation: %w", err)
	}
	return answer, nil
}
