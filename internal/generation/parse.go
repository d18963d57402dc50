package generation

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/templates"
	"github.com/tidwall/gjson"
)

// extractJSON finds the JSON document in a model response. A fenced code block wins over the first balanced object
// or array in the text.
func extractJSON(raw string) (string, bool) {
	if fenced, ok := fencedBlock(raw); ok && gjson.Valid(fenced) {
		return fenced, true
	}
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' && raw[start] != '[' {
			continue
		}
		end, ok := balancedEnd(raw, start)
		if !ok {
			continue
		}
		if candidate := raw[start : end+1]; gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func fencedBlock(raw string) (string, bool) {
	const fence = "```"
	open := strings.Index(raw, fence)
	if open < 0 {
		return "", false
	}
	body := raw[open+len(fence):]
	// The info string such as "json" runs until the end of the line.
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	}
	closing := strings.Index(body, fence)
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:closing]), true
}

// balancedEnd returns the index of the bracket closing the one at start. Brackets inside strings are skipped.
func balancedEnd(raw string, start int) (int, bool) {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseEntities turns a model response into validated payloads following the output format of the template.
func parseEntities(raw string, tmpl *templates.Template, entityType models.EntityType) ([]json.RawMessage, error) {
	document, ok := extractJSON(raw)
	if !ok {
		return nil, errors.New("response contains no JSON")
	}
	parsed := gjson.Parse(document)

	var items []gjson.Result
	switch tmpl.OutputFormat {
	case templates.OutputFormatList:
		switch {
		case parsed.IsArray():
			items = parsed.Array()
		case tmpl.ListKey != "" && parsed.Get(gjson.Escape(tmpl.ListKey)).IsArray():
			items = parsed.Get(gjson.Escape(tmpl.ListKey)).Array()
		case parsed.IsObject():
			items = []gjson.Result{parsed}
		}
	case templates.OutputFormatObject:
		if !parsed.IsObject() {
			return nil, errors.New("expected a single JSON object")
		}
		items = []gjson.Result{parsed}
	}
	if len(items) == 0 {
		return nil, errors.New("response contains no entities")
	}

	payloads := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		data := json.RawMessage(item.Raw)
		if _, err := models.DecodePayload(entityType, data); err != nil {
			return nil, errors.Wrap(err, "invalid entity", slog.Int("index", i))
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}
