// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipt

import (
	"bytes"
	"encoding/json"
)

// canonicalize renders v as canonical JSON: object keys sorted ascending
// by Unicode codepoint at every nesting level, no HTML-escaping, no
// insignificant whitespace, UTF-8, LF line endings (there are none, the
// output has no newlines at all). encoding/json already sorts map[string]any
// keys when marshaling a map, so round-tripping any JSON-shaped value
// through map[string]any/[]any gives the canonical form for free.
func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
