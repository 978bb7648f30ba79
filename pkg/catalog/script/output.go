package script

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nimburion/bookstore/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// Format selects how a report is written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Write renders the report in the requested format.
func Write(w io.Writer, rep *Report, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, rep)
	}
	return WriteText(w, rep)
}

// WriteText prints each heading followed by its documents as relaxed extended JSON.
func WriteText(w io.Writer, rep *Report) error {
	var buf bytes.Buffer
	for _, s := range rep.Sections {
		buf.WriteString(s.Heading)
		buf.WriteByte('\n')
		if s.Explain != nil {
			b, err := bson.MarshalExtJSONIndent(s.Explain, false, false, "", "  ")
			if err != nil {
				return fmt.Errorf("render %s %w", s.Heading, err)
			}
			buf.Write(b)
		} else if err := writeDocuments(&buf, s.Documents); err != nil {
			return fmt.Errorf("render %s %w", s.Heading, err)
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("\n" + CompletedLine + "\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeDocuments(buf *bytes.Buffer, docs []document.Document) error {
	if len(docs) == 0 {
		buf.WriteString("[]")
		return nil
	}
	buf.WriteString("[\n")
	for i, d := range docs {
		b, err := bson.MarshalExtJSONIndent(d, false, false, "  ", "  ")
		if err != nil {
			return err
		}
		buf.WriteString("  ")
		buf.Write(b)
		if i < len(docs)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]")
	return nil
}

// WriteJSON writes the whole report as one relaxed extended JSON document.
func WriteJSON(w io.Writer, rep *Report) error {
	sections := bson.A{}
	for _, s := range rep.Sections {
		entry := bson.D{{Key: "heading", Value: s.Heading}}
		if s.Explain != nil {
			entry = append(entry, bson.E{Key: "explain", Value: s.Explain})
		} else {
			docs := bson.A{}
			for _, d := range s.Documents {
				docs = append(docs, d)
			}
			entry = append(entry, bson.E{Key: "documents", Value: docs})
		}
		sections = append(sections, entry)
	}
	indexes := bson.A{}
	for _, name := range rep.Indexes {
		indexes = append(indexes, name)
	}
	out := bson.D{
		{Key: "seeded", Value: int64(rep.Seeded)},
		{Key: "updated", Value: rep.Updated},
		{Key: "deleted", Value: rep.Deleted},
		{Key: "indexes", Value: indexes},
		{Key: "sections", Value: sections},
	}
	b, err := bson.MarshalExtJSONIndent(out, false, false, "", "  ")
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
