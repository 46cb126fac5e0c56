// Package http provides HTTP server and handler implementations.
//
// This file decodes request bodies into records. A body may be form-encoded
// (the htmx forms) or JSON (scripted clients); both go through the same
// field lookup.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

// maxBodyBytes bounds record and login bodies.
const maxBodyBytes = 64 << 10

// ErrIncompleteForm is returned when the field that identifies a record
// (an operation's date, a task's title, a document's name) is empty.
// Nothing is saved in that case.
var ErrIncompleteForm = errors.New("incomplete form")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

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

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// DecodeRecord builds the record for kind from the parsed body. Fields are
// taken as entered; only the identifying field must be present.
func DecodeRecord(kind core.Kind, p *RequestBodyParser) (core.Record, error) {
	switch kind {
	case core.KindOperation:
		op := core.Operation{
			Date:   p.Get("date"),
			Type:   p.Get("type"),
			Client: p.Get("client"),
			Amount: core.Amount(p.Get("amount")),
			Status: p.Get("status"),
		}
		if op.Date == "" {
			return nil, fmt.Errorf("%w: date is required", ErrIncompleteForm)
		}
		return op, nil
	case core.KindTask:
		t := core.Task{
			Title:       p.Get("title"),
			Description: p.Get("description"),
			DueDate:     p.Get("due_date"),
			Status:      p.Get("status"),
		}
		if t.Title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrIncompleteForm)
		}
		return t, nil
	case core.KindDocument:
		d := core.Document{
			Name:         p.Get("name"),
			Type:         p.Get("type"),
			FileURL:      p.Get("file_url"),
			UploadedDate: p.Get("uploaded_date"),
		}
		if d.Name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrIncompleteForm)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("decode %q: %w", kind, core.ErrUnknownKind)
	}
}
