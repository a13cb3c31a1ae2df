package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	logx "modelwatch/pkg/logx"
)

// Candidate keys tried, in order, when no explicit id path is configured.
// The same list doubles as the display-name fallback after the preferred
// name keys.
var fallbackIDKeys = []string{"id", "slug", "identifier", "name", "model"}

// Preferred display-name keys, tried before falling back to the id.
var nameKeys = []string{"name", "publicName", "displayName"}

// ExtractionError reports a structurally invalid catalog document: a missing
// path segment or a terminal value that is not an array. Malformed individual
// records never raise it; they are skipped.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return "extract: " + e.Reason + ": " + e.Err.Error()
	}
	return "extract: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor renders a raw JSON catalog document into canonical Models.
//
// ModelsPath navigates from the document root to the array of model records
// (empty path means the root itself is the array). IDPath, when set,
// navigates within each record to the identifier; otherwise the fallback
// keys are tried in order.
type Extractor struct {
	ModelsPath []string
	IDPath     []string
	Log        logx.Logger
}

func (x Extractor) Extract(raw []byte) ([]Model, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ExtractionError{Reason: "invalid JSON document", Err: err}
	}

	node := doc
	for i, seg := range x.ModelsPath {
		next, ok := navigate(node, seg)
		if !ok {
			return nil, &ExtractionError{Reason: fmt.Sprintf("path segment %q (position %d) not found", seg, i)}
		}
		node = next
	}

	records, ok := node.([]any)
	if !ok {
		return nil, &ExtractionError{Reason: "models path does not resolve to an array"}
	}

	models := make([]Model, 0, len(records))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			x.Log.Debug("skipping non-object model record", logx.Int("index", i))
			continue
		}
		id, ok := x.recordID(obj)
		if !ok {
			x.Log.Debug("skipping model record without usable identifier", logx.Int("index", i))
			continue
		}
		models = append(models, Model{ID: id, Name: recordName(obj, id)})
	}
	return models, nil
}

// recordID resolves a record's canonical identifier: the configured IDPath
// when present, the fallback keys otherwise.
func (x Extractor) recordID(obj map[string]any) (string, bool) {
	if len(x.IDPath) > 0 {
		var node any = obj
		for _, seg := range x.IDPath {
			next, ok := navigate(node, seg)
			if !ok {
				return "", false
			}
			node = next
		}
		return scalarString(node)
	}
	for _, key := range fallbackIDKeys {
		if v, ok := obj[key]; ok {
			if s, ok := scalarString(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

// recordName resolves the display name, independent of which key supplied
// the id, defaulting to the id itself.
func recordName(obj map[string]any, id string) string {
	for _, key := range nameKeys {
		if v, ok := obj[key]; ok {
			if s, ok := scalarString(v); ok {
				return s
			}
		}
	}
	return id
}

// navigate steps one segment into a decoded JSON value: object key for maps,
// integer index for arrays.
func navigate(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}

// scalarString coerces a terminal JSON value to a non-empty string.
// Numbers and booleans are stringified; nested values are not usable.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case json.Number:
		return s.String(), s.String() != ""
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
