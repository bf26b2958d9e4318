// Package recipient loads the recipient table used for a mail merge.
package recipient

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultComment is the marker that starts a comment line.
const DefaultComment = '#'

var (
	// ErrMissingColumns indicates a row without name, email and data columns.
	ErrMissingColumns = errors.New("row must have name, email and data columns")

	// ErrInvalidComment indicates an unusable comment marker.
	ErrInvalidComment = errors.New("invalid comment marker")
)

// Record is one row of the recipient table.
type Record struct {
	Name  string
	Email string
	Data  string
}

// Fields returns the record as a template data map.
func (r Record) Fields() map[string]string {
	return map[string]string{
		"name":  r.Name,
		"email": r.Email,
		"data":  r.Data,
		"Name":  r.Name,
		"Email": r.Email,
		"Data":  r.Data,
	}
}

// Address formats the record as a display-name/address pair.
func (r Record) Address() string {
	return fmt.Sprintf("%q <%s>", r.Name, r.Email)
}

type options struct {
	comment rune
}

// Option configures parsing.
type Option func(*options)

// WithComment sets the comment marker. A zero rune disables comments.
func WithComment(c rune) Option {
	return func(o *options) {
		o.comment = c
	}
}

// Load reads and parses the recipient table at path.
func Load(path string, opts ...Option) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient list: %w", err)
	}
	defer f.Close()

	records, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// Parse reads all records from r. Any row that cannot supply three columns
// fails the whole table.
func Parse(r io.Reader, opts ...Option) ([]Record, error) {
	o := options{comment: DefaultComment}
	for _, opt := range opts {
		opt(&o)
	}
	if o.comment != 0 && (o.comment == ',' || o.comment == '"' || o.comment == '\r' ||
		o.comment == '\n' || o.comment == utf8.RuneError) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidComment, o.comment)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = o.comment

	var records []Record
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		// Quoted comment rows escape the reader's comment handling
		if o.comment != 0 && strings.HasPrefix(row[0], string(o.comment)) {
			continue
		}

		line, _ := reader.FieldPos(0)
		if len(row) < 3 {
			return nil, fmt.Errorf("line %d: %w (got %d)", line, ErrMissingColumns, len(row))
		}

		rec := Record{Name: row[0], Email: row[1], Data: row[2]}
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func isHeader(rec Record) bool {
	return strings.EqualFold(strings.TrimSpace(rec.Name), "name") &&
		strings.EqualFold(strings.TrimSpace(rec.Email), "email") &&
		strings.EqualFold(strings.TrimSpace(rec.Data), "data")
}
