// Package export renders selection summaries for download.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

const csvBufferSize = 32 * 1024

// Header is the fixed CSV header row.
var Header = []string{
	"MR Line ID",
	"Description",
	"Selected Supplier ID",
	"Selected Supplier Name",
	"Unit Price",
	"Total Price",
	"Savings vs Best",
}

// ErrHeaderMismatch is returned by ReadCSV when the header row differs.
var ErrHeaderMismatch = errors.New("export: unexpected csv header")

// Filename returns the download name for a summary.
func Filename(rfqNumber, ext string) string {
	name := strings.TrimSpace(rfqNumber)
	if name == "" {
		name = "rfq"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\r', '\n':
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("%s-comparison.%s", name, ext)
}

// quotedWriter writes RFC 4180 records with every field quoted.
// encoding/csv only quotes fields that need it.
type quotedWriter struct {
	buf *bufio.Writer
}

func newQuotedWriter(w io.Writer) *quotedWriter {
	return &quotedWriter{buf: bufio.NewWriterSize(w, csvBufferSize)}
}

func (q *quotedWriter) writeRow(fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := q.buf.WriteByte(','); err != nil {
				return err
			}
		}
		if err := q.buf.WriteByte('"'); err != nil {
			return err
		}
		if _, err := q.buf.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := q.buf.WriteByte('"'); err != nil {
			return err
		}
	}
	_, err := q.buf.WriteString("\r\n")
	return err
}

func (q *quotedWriter) Flush() error {
	return q.buf.Flush()
}

// WriteCSV renders one row per summary row, money fixed to 2 decimals.
func WriteCSV(w io.Writer, summary rfq.Summary) error {
	out := newQuotedWriter(w)
	if err := out.writeRow(Header); err != nil {
		return err
	}
	for _, row := range summary.Rows {
		if err := out.writeRow([]string{
			strconv.FormatInt(row.LineItemID, 10),
			row.Description,
			strconv.FormatInt(row.SupplierID, 10),
			row.SupplierName,
			formatMoney(row.UnitPrice),
			formatMoney(row.TotalPrice),
			formatMoney(row.Savings),
		}); err != nil {
			return err
		}
	}
	return out.Flush()
}

// Record is one parsed CSV row.
type Record struct {
	LineItemID   int64
	Description  string
	SupplierID   int64
	SupplierName string
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	Savings      decimal.Decimal
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	for i := range Header {
		if header[i] != Header[i] {
			return nil, ErrHeaderMismatch
		}
	}
	var records []Record
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRecord(fields)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(fields []string) (Record, error) {
	var rec Record
	var err error
	if rec.LineItemID, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return Record{}, fmt.Errorf("line id: %w", err)
	}
	rec.Description = fields[1]
	if rec.SupplierID, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return Record{}, fmt.Errorf("supplier id: %w", err)
	}
	rec.SupplierName = fields[3]
	if rec.UnitPrice, err = decimal.NewFromString(fields[4]); err != nil {
		return Record{}, fmt.Errorf("unit price: %w", err)
	}
	if rec.TotalPrice, err = decimal.NewFromString(fields[5]); err != nil {
		return Record{}, fmt.Errorf("total price: %w", err)
	}
	if rec.Savings, err = decimal.NewFromString(fields[6]); err != nil {
		return Record{}, fmt.Errorf("savings: %w", err)
	}
	return rec, nil
}

func formatMoney(d decimal.Decimal) string {
	return rfq.RoundMoney(d).StringFixed(2)
}
