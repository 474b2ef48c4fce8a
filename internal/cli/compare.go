// Package cli implements the offline comparison and job maintenance commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq/export"
)

// Exit codes shared by the comparison commands.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitIncomplete = 10
	ExitIntegrity  = 11
)

// CompareOptions defines the flags shared by compare and export.
type CompareOptions struct {
	File     string
	TieBreak string
	Currency string
	// Selections override the recommendation, formatted line=supplier:quote.
	Selections []string
	// NoSeed starts from an empty allocation instead of the recommendation.
	NoSeed     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExportOptions extends CompareOptions with the output target.
type ExportOptions struct {
	CompareOptions
	Format string
	OutDir string
}

// CompareCommand prints the comparison matrix and savings for an RFQ file.
func CompareCommand(ctx context.Context, opts CompareOptions) int {
	opts.defaults()
	alloc, code := opts.allocation("compare")
	if code != ExitOK {
		return code
	}
	view := rfq.BuildComparison(alloc)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(view); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "compare: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderComparison(opts.Stdout, view)
	}
	if !view.Completeness.Complete() {
		return ExitIncomplete
	}
	return ExitOK
}

// ExportCommand writes the selection summary to {rfq_number}-comparison.{csv|xlsx}.
func ExportCommand(ctx context.Context, opts ExportOptions) int {
	opts.defaults()
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "csv"
	}
	write := export.WriteCSV
	switch format {
	case "csv":
	case "xlsx":
		write = export.WriteXLSX
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "export: unsupported format %q (csv or xlsx)\n", opts.Format)
		return ExitError
	}
	alloc, code := opts.allocation("export")
	if code != ExitOK {
		return code
	}
	summary, err := rfq.NewBuilder().Build(alloc.RFQ(), alloc.Selections())
	if err != nil {
		var incomplete *rfq.IncompleteSelectionError
		if errors.As(err, &incomplete) {
			_, _ = fmt.Fprintf(opts.Stderr, "export: %v\n", err)
			return ExitIncomplete
		}
		_, _ = fmt.Fprintf(opts.Stderr, "export: %v\n", err)
		return ExitError
	}
	var buf bytes.Buffer
	if err := write(&buf, summary); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "export: render %s: %v\n", format, err)
		return ExitError
	}
	dir := opts.OutDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, export.Filename(summary.RFQNumber, format))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "export: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s\n", path)
	return ExitOK
}

func (o *CompareOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// allocation loads the RFQ file, validates it and applies the requested
// selections on top of the recommendation.
func (o CompareOptions) allocation(cmd string) (*rfq.Allocation, int) {
	policy, err := rfq.ParseTieBreakPolicy(o.TieBreak)
	if err != nil {
		_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
		return nil, ExitError
	}
	r, err := LoadRFQFile(o.File)
	if err != nil {
		_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
		return nil, ExitError
	}
	if r.Currency == "" {
		r.Currency = strings.ToUpper(o.Currency)
	}
	if err := rfq.CheckIntegrity(&r); err != nil {
		_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
		return nil, ExitIntegrity
	}
	alloc := rfq.NewAllocation(&r, rfq.NewResolver(policy), nil)
	if !o.NoSeed {
		alloc.Seed()
	}
	for _, raw := range o.Selections {
		line, supplier, quote, err := ParseSelection(raw)
		if err != nil {
			_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
			return nil, ExitError
		}
		if _, err := alloc.Select(line, supplier, quote); err != nil {
			_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
			return nil, ExitError
		}
	}
	return alloc, ExitOK
}

// LoadRFQFile decodes a fully hydrated RFQ from a JSON file.
func LoadRFQFile(path string) (rfq.RFQ, error) {
	if strings.TrimSpace(path) == "" {
		return rfq.RFQ{}, errors.New("--file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rfq.RFQ{}, err
	}
	var r rfq.RFQ
	if err := json.Unmarshal(data, &r); err != nil {
		return rfq.RFQ{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// ParseSelection parses "line=supplier:quote".
func ParseSelection(raw string) (line, supplier, quote int64, err error) {
	linePart, rest, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid selection %q (expected line=supplier:quote)", raw)
	}
	supplierPart, quotePart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid selection %q (expected line=supplier:quote)", raw)
	}
	ids := make([]int64, 3)
	for i, part := range []string{linePart, supplierPart, quotePart} {
		v, perr := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if perr != nil || v <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid selection %q: ids must be positive integers", raw)
		}
		ids[i] = v
	}
	return ids[0], ids[1], ids[2], nil
}

func renderComparison(out io.Writer, view rfq.Comparison) {
	_, _ = fmt.Fprintf(out, "RFQ %s (%s) tie-break %s\n", view.RFQNumber, view.Currency, view.TieBreak)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LINE\tITEM\tSUPPLIER\tQUOTE\tTOTAL\tBEST\tSAVINGS")
	for _, line := range view.Lines {
		if !line.Quoted() {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t(no quotes)\t\t\t\t\n", line.LineItem.ID, line.LineItem.ItemCode)
			continue
		}
		if line.Selection == nil {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t(unassigned)\t\t\t%s\t\n", line.LineItem.ID, line.LineItem.ItemCode, line.BestTotal.StringFixed(2))
			continue
		}
		var selected rfq.OfferView
		for _, offer := range line.Offers {
			if offer.Selected {
				selected = offer
				break
			}
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			line.LineItem.ID, line.LineItem.ItemCode, selected.SupplierName, selected.QuoteID,
			selected.TotalPrice.StringFixed(2), line.BestTotal.StringFixed(2), line.Savings.StringFixed(2))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(out, "Total selected %s, best %s, savings %s\n",
		view.TotalSelected.StringFixed(2), view.TotalBest.StringFixed(2), view.TotalSavings.StringFixed(2))
	if !view.Completeness.Complete() {
		ids := make([]string, len(view.Completeness.Missing))
		for i, id := range view.Completeness.Missing {
			ids[i] = strconv.FormatInt(id, 10)
		}
		_, _ = fmt.Fprintf(out, "Missing selections for lines: %s\n", strings.Join(ids, ", "))
	}
}
