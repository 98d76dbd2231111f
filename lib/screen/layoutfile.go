// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// layoutFile is the on-disk form of a layout: a JSONC object with a
// "screens" list, written by whatever owns the real outputs.
type layoutFile struct {
	Screens []Screen `json:"screens"`
}

// ParseLayout strips JSONC comments and trailing commas from data and
// decodes the screen list. The result is validated.
func ParseLayout(data []byte) (Static, error) {
	var file layoutFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("parsing screen layout: %w", err)
	}
	if err := Validate(file.Screens); err != nil {
		return nil, err
	}
	return Static(file.Screens), nil
}

// ReadLayoutFile reads and parses a JSONC layout file.
func ReadLayoutFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	layout, err := ParseLayout(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layout, nil
}
