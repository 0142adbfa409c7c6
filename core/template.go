package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultTimestampLayout renders as e.g. "2024-01-15 12:30:00.250 +02:00"
	DefaultTimestampLayout = "2006-01-02 15:04:05.000 -07:00"

	// DefaultOutputTemplate is the line format used by text sinks
	DefaultOutputTemplate = "{Timestamp:" + DefaultTimestampLayout + "} [{Level}] {Message}{NewLine}{Exception}"
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenTimestamp
	tokenLevel
	tokenMessage
	tokenNewLine
	tokenException
	tokenLogger
	tokenProperties
)

var tokenNames = map[string]tokenKind{
	"Timestamp":  tokenTimestamp,
	"Level":      tokenLevel,
	"Message":    tokenMessage,
	"NewLine":    tokenNewLine,
	"Exception":  tokenException,
	"Logger":     tokenLogger,
	"Properties": tokenProperties,
}

type segment struct {
	kind   tokenKind
	text   string // literal text
	format string // text after ':' in the token
}

// Template renders records through an output template such as
// "{Timestamp} [{Level}] {Message}{NewLine}{Exception}".
// Unknown tokens are written literally and "{{" / "}}" escape braces.
type Template struct {
	raw      string
	segments []segment
}

// ParseTemplate compiles an output template
func ParseTemplate(s string) (*Template, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("output template cannot be empty")
	}

	t := &Template{raw: s}
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			t.segments = append(t.segments, segment{kind: tokenLiteral, text: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			literal.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			literal.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				literal.WriteString(s[i:])
				i = len(s)
				continue
			}
			body := s[i+1 : i+end]
			name, format, _ := strings.Cut(body, ":")
			kind, known := tokenNames[name]
			if !known {
				literal.WriteString(s[i : i+end+1])
			} else {
				flush()
				t.segments = append(t.segments, segment{kind: kind, format: format})
			}
			i += end
		default:
			literal.WriteByte(c)
		}
	}
	flush()

	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source
func (t *Template) String() string { return t.raw }

// Render formats a record
func (t *Template) Render(r *Record) string {
	var b strings.Builder
	t.renderTo(&b, r)
	return b.String()
}

func (t *Template) renderTo(b *strings.Builder, r *Record) {
	for _, seg := range t.segments {
		switch seg.kind {
		case tokenLiteral:
			b.WriteString(seg.text)
		case tokenTimestamp:
			layout := seg.format
			if layout == "" {
				layout = DefaultTimestampLayout
			}
			b.WriteString(r.Timestamp().Format(layout))
		case tokenLevel:
			if strings.EqualFold(seg.format, "u3") {
				b.WriteString(r.Level().Short())
			} else {
				b.WriteString(r.Level().String())
			}
		case tokenMessage:
			b.WriteString(messageEscaper.Replace(r.Message()))
		case tokenNewLine:
			b.WriteByte('\n')
		case tokenException:
			if err := r.Err(); err != nil {
				b.WriteString(err.Error())
				b.WriteByte('\n')
			}
		case tokenLogger:
			b.WriteString(r.LoggerName())
		case tokenProperties:
			writeProperties(b, r.fields)
		}
	}
}

func writeProperties(b *strings.Builder, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	b.WriteByte('}')
}

// Messages stay on one line: backslash, CR and LF are escaped on render
// and restored by ParseLine.
var messageEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func unescapeMessage(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ParsedLine holds the parts recovered from a line written with the
// default output template
type ParsedLine struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Exception string
}

// ParseLine parses text rendered with DefaultOutputTemplate. The message
// is unescaped; everything after the first newline is the exception text.
func ParseLine(line string) (ParsedLine, error) {
	var parsed ParsedLine

	n := len(DefaultTimestampLayout)
	if len(line) < n+3 {
		return parsed, fmt.Errorf("line too short")
	}

	ts, err := time.Parse(DefaultTimestampLayout, line[:n])
	if err != nil {
		return parsed, fmt.Errorf("invalid timestamp: %w", err)
	}

	rest := line[n:]
	if !strings.HasPrefix(rest, " [") {
		return parsed, fmt.Errorf("missing level")
	}
	rest = rest[2:]
	levelText, rest, ok := strings.Cut(rest, "] ")
	if !ok {
		return parsed, fmt.Errorf("unterminated level")
	}
	level, err := ParseLevel(levelText)
	if err != nil {
		return parsed, err
	}

	message, exception, _ := strings.Cut(rest, "\n")

	parsed.Timestamp = ts
	parsed.Level = level
	parsed.Message = unescapeMessage(message)
	parsed.Exception = strings.TrimSuffix(exception, "\n")
	return parsed, nil
}

// Formatter renders records for line-oriented destinations, either through
// an output template or as one JSON object per line
type Formatter struct {
	json     bool
	template *Template
}

// NewFormatter creates a formatter. format is "text" (default) or "json";
// outputTemplate defaults to DefaultOutputTemplate.
func NewFormatter(format, outputTemplate string) (*Formatter, error) {
	switch format {
	case "", "text":
	case "json":
		return &Formatter{json: true}, nil
	default:
		return nil, fmt.Errorf("invalid format '%s', must be 'text' or 'json'", format)
	}

	if outputTemplate == "" {
		outputTemplate = DefaultOutputTemplate
	}
	tmpl, err := ParseTemplate(outputTemplate)
	if err != nil {
		return nil, err
	}
	return &Formatter{template: tmpl}, nil
}

// Format renders one record
func (f *Formatter) Format(r *Record) ([]byte, error) {
	if f.json {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return []byte(f.template.Render(r)), nil
}
