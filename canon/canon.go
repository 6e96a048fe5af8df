// Package canon implements the canonical JSON encoding shared by manifests
// and render input data (papermake spec §6): UTF-8, no insignificant
// whitespace, object keys sorted by UTF-8 byte order, numbers in shortest
// round-trip form, and no NaN/Infinity or duplicate object keys.
//
// The heavy lifting is RFC 8785 (JSON Canonicalization Scheme), done by
// github.com/cyberphone/json-canonicalization. canon adds the pre-pass JCS
// itself is silent on: rejecting duplicate object keys and non-finite
// numbers before they ever reach the transformer.
package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// ErrDuplicateKey is returned when a JSON object contains the same key more
// than once.
var ErrDuplicateKey = errors.New("canon: duplicate object key")

// ErrNonFiniteNumber is returned when the pre-pass meets an empty number
// literal. NaN and Infinity are rejected by other errors: raw text holding
// them fails decoding, and json.Marshal refuses Go NaN/Inf values in
// Canonicalize.
var ErrNonFiniteNumber = errors.New("canon: non-finite number")

// Canonicalize marshals v to JSON and returns its canonical encoding.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	return CanonicalizeRaw(raw)
}

// CanonicalizeRaw validates and canonicalizes an already-serialized JSON
// document. It is the entry point used for render input data, which
// arrives as raw bytes from the caller rather than a typed Go value.
func CanonicalizeRaw(raw []byte) ([]byte, error) {
	if err := checkNoDuplicateKeys(raw); err != nil {
		return nil, err
	}

	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: transform: %w", err)
	}
	return out, nil
}

// checkNoDuplicateKeys walks the decoded token stream looking for repeated
// keys within any single object. encoding/json silently keeps the last
// occurrence on Unmarshal into a map, which would let two semantically
// different payloads collapse to the same canonical bytes; papermake
// treats that ambiguity as invalid data instead.
func checkNoDuplicateKeys(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return walkValue(dec)
}

func walkValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("canon: decode: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			seen := make(map[string]struct{})
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return fmt.Errorf("canon: decode key: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return fmt.Errorf("canon: non-string object key %v", keyTok)
				}
				if _, dup := seen[key]; dup {
					return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
				}
				seen[key] = struct{}{}

				if err := walkValue(dec); err != nil {
					return err
				}
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return err
			}
		case '[':
			for dec.More() {
				if err := walkValue(dec); err != nil {
					return err
				}
			}
			// consume closing ']'
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
	case json.Number:
		if err := checkFiniteNumber(t); err != nil {
			return err
		}
	}

	return nil
}

func checkFiniteNumber(n json.Number) error {
	// encoding/json never decodes NaN or Infinity from valid JSON text (they
	// aren't legal JSON literals; input holding them fails at dec.Token
	// with a decoding error), so this only rejects an empty literal.
	s := n.String()
	if s == "" {
		return fmt.Errorf("%w: empty number literal", ErrNonFiniteNumber)
	}
	return nil
}
