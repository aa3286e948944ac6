package main

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// buildArgs merges a JSON object with key=value pairs into operation arguments.
// Keys are sjson paths (a.b.0.c); values that parse as JSON keep their type,
// anything else is a string.
func buildArgs(jsonBody string, pairs []string) (map[string]any, error) {
	body := strings.TrimSpace(jsonBody)
	if body == "" {
		body = "{}"
	}
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		return nil, usageError("--json must be a JSON object")
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, usageError(fmt.Sprintf("invalid --arg %q, expected key=value", pair))
		}

		var err error
		if value != "" && gjson.Valid(value) {
			body, err = sjson.SetRaw(body, key, value)
		} else {
			body, err = sjson.Set(body, key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	args, ok := gjson.Parse(body).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments are not an object")
	}
	return args, nil
}

// formatOutput renders raw JSON, optionally narrowed by a gjson query.
// Color is only applied for terminals.
func formatOutput(raw []byte, query string, color bool) ([]byte, error) {
	if query != "" {
		result := gjson.GetBytes(raw, query)
		if !result.Exists() {
			return nil, fmt.Errorf("query %q matched nothing", query)
		}
		if result.Type == gjson.String {
			return []byte(result.Str + "\n"), nil
		}
		raw = []byte(result.Raw)
	}

	out := pretty.Pretty(raw)
	if color {
		out = pretty.Color(out, nil)
	}
	return out, nil
}
