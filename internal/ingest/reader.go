// Package ingest reads transaction records from CSV input.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/payments_engine/pkg/models"
	"github.com/Aidin1998/payments_engine/pkg/money"
)

var validate = validator.New()

// Reader decodes transaction records in input order. The first row
// must be the header. Type matching is case-insensitive and fields
// tolerate surrounding whitespace. Any malformed row aborts the
// stream; business-rule validation belongs to the engine.
type Reader struct {
	csv    *csv.Reader
	closer io.Closer
	header bool
}

// NewReader wraps an input stream
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// Reference rows may omit the amount column entirely.
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &Reader{csv: cr}
}

// Open creates a reader owning the file handle
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Close releases the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Next returns the next record, or io.EOF once the input is exhausted
func (r *Reader) Next() (models.Record, error) {
	if !r.header {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return models.Record{}, io.EOF
			}
			return models.Record{}, fmt.Errorf("read header: %w", err)
		}
		r.header = true
	}

	row, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return models.Record{}, io.EOF
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("read record: %w", err)
	}

	return r.parse(row)
}

func (r *Reader) parse(row []string) (models.Record, error) {
	line, _ := r.csv.FieldPos(0)

	if len(row) < 3 {
		return models.Record{}, fmt.Errorf("line %d: expected type, client and tx columns", line)
	}

	kind, ok := models.ParseKind(row[0])
	if !ok {
		return models.Record{}, fmt.Errorf("line %d: unknown record type %q", line, row[0])
	}

	client, err := strconv.ParseUint(strings.TrimSpace(row[1]), 10, 16)
	if err != nil {
		return models.Record{}, fmt.Errorf("line %d: invalid client id %q: %w", line, row[1], err)
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
	if err != nil {
		return models.Record{}, fmt.Errorf("line %d: invalid transaction id %q: %w", line, row[2], err)
	}

	rec := models.Record{
		Kind:   kind,
		Client: uint16(client),
		Tx:     uint32(tx),
	}

	// The amount column only means something on deposits and
	// withdrawals; a value on reference rows is tolerated and dropped.
	if kind.Funding() && len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		amount, err := money.Parse(row[3])
		if err != nil {
			return models.Record{}, fmt.Errorf("line %d: %w", line, err)
		}
		rec.Amount = &amount
	}

	if err := validate.Struct(&rec); err != nil {
		return models.Record{}, fmt.Errorf("line %d: invalid record: %w", line, err)
	}

	return rec, nil
}
