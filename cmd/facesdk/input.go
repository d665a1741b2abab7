package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// blobKey marks a mapping that stands for binary data in JSON and YAML
// documents: {"$base64": "..."}.
const blobKey = "$base64"

// readLiteral resolves a flag value to a literal. "-" reads stdin and
// "@path" reads a file; anything else is the document itself.
func readLiteral(arg string, stdin io.Reader) (any, error) {
	var raw []byte
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		raw = b
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		raw = []byte(arg)
	}
	return parseLiteral(raw)
}

// parseLiteral decodes JSON, keeping numbers exact, and falls back to YAML.
func parseLiteral(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	if json.Valid(raw) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return decodeBlobs(v)
}

func decodeBlobs(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if enc, ok := x[blobKey].(string); ok {
				b, err := base64.StdEncoding.DecodeString(enc)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", blobKey, err)
				}
				return b, nil
			}
		}
		for k, e := range x {
			d, err := decodeBlobs(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			x[k] = d
		}
	case []any:
		for i, e := range x {
			d, err := decodeBlobs(e)
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			x[i] = d
		}
	}
	return v, nil
}

func encodeBlobs(v any) any {
	switch x := v.(type) {
	case []byte:
		return map[string]any{blobKey: base64.StdEncoding.EncodeToString(x)}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeBlobs(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeBlobs(e)
		}
		return out
	}
	return v
}

func writeJSON(w io.Writer, lit any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(encodeBlobs(lit))
}
