package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budgetagent/internal/config"
	"budgetagent/internal/core"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// errBodyTooLarge maps to 413.
var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser reads a JSON object body once and exposes typed
// accessors over its fields.
type RequestBodyParser struct {
	data map[string]interface{}
}

// ParseJSONBody reads at most MaxBodyBytes from r. An empty body is an
// empty object; anything other than a JSON object is an invalid argument.
func ParseJSONBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	p := &RequestBodyParser{data: map[string]interface{}{}}
	if len(strings.TrimSpace(string(body))) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(body, &p.data); err != nil || p.data == nil {
		return nil, core.InvalidArgument("body must be a JSON object")
	}
	return p, nil
}

// String returns the trimmed field value; numbers are formatted, other
// types read as empty.
func (p *RequestBodyParser) String(key string) string {
	return strings.TrimSpace(sanitizeInput(stringValue(p.data[key])))
}

// Bool reads a flag given as a JSON boolean or as one of the strings
// 1/true/yes/y/on in any case. Absent or null yields def.
func (p *RequestBodyParser) Bool(key string, def bool) bool {
	v, ok := p.data[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	b, _ := config.ParseFlexibleBool(stringValue(v))
	return b
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
