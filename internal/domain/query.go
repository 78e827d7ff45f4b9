package domain

import (
	"fmt"
	"strings"
)

// StructuredDocument is a normalized query document, shaped like the
// corpus records (patent-style: title, abstract, numbered claims).
type StructuredDocument struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Claims   []string `json:"claims,omitempty"`
}

// ComposeText projects the document onto its query text: the title and the
// first claim, joined by a newline, skipping empty fields. Pure function.
func (d StructuredDocument) ComposeText() string {
	var parts []string
	if t := strings.TrimSpace(d.Title); t != "" {
		parts = append(parts, t)
	}
	for _, c := range d.Claims {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
			break
		}
	}
	return strings.Join(parts, "\n")
}

// Query is either raw text or a structured document, fixed at construction.
type Query struct {
	raw string
	doc *StructuredDocument
}

func RawText(text string) Query {
	return Query{raw: text}
}

func Structured(doc StructuredDocument) Query {
	return Query{doc: &doc}
}

// Text resolves the query to the string handed to the embedder. A query
// that resolves to nothing returns ErrInvalidQuery.
func (q Query) Text() (string, error) {
	if q.doc != nil {
		text := q.doc.ComposeText()
		if text == "" {
			return "", fmt.Errorf("%w: structured document has no title or claims", ErrInvalidQuery)
		}
		return text, nil
	}
	text := strings.TrimSpace(q.raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty query text", ErrInvalidQuery)
	}
	return text, nil
}
