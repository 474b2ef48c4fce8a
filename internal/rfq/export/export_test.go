package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

func sampleSummary(t *testing.T) rfq.Summary {
	t.Helper()
	submitted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := rfq.RFQ{
		ID:       7,
		Number:   "RFQ-2026-007",
		Currency: "USD",
		MaterialRequest: rfq.MaterialRequest{
			ID: 3, Number: "MR-3",
		},
		LineItems: []rfq.LineItem{
			{ID: 1, ItemCode: "BOLT", Description: `Hex bolt 3/4" x 2, zinc`, Quantity: decimal.NewFromInt(10), UOM: "pcs"},
			{ID: 2, ItemCode: "NUT", Description: "Nut\nM12", Quantity: decimal.NewFromInt(4), UOM: "pcs"},
		},
		Suppliers: []rfq.InvitedSupplier{
			{SupplierID: 100, Supplier: rfq.Supplier{ID: 100, Name: `Acme "Fasteners"`}},
			{SupplierID: 200, Supplier: rfq.Supplier{ID: 200, Name: "Bolt, Inc."}},
		},
		Quotes: []rfq.Quote{
			{ID: 11, RFQID: 7, SupplierID: 100, Status: rfq.QuoteSubmitted, SubmittedAt: submitted, Currency: "USD",
				Lines: []rfq.QuoteLine{
					{MRLineItemID: 1, UnitPrice: decimal.RequireFromString("10.005"), Quantity: decimal.NewFromInt(10), TotalPrice: decimal.RequireFromString("100.05")},
					{MRLineItemID: 2, UnitPrice: decimal.RequireFromString("12.50"), Quantity: decimal.NewFromInt(4), TotalPrice: decimal.RequireFromString("50")},
				}},
			{ID: 12, RFQID: 7, SupplierID: 200, Status: rfq.QuoteSubmitted, SubmittedAt: submitted.Add(time.Hour), Currency: "USD",
				Lines: []rfq.QuoteLine{
					{MRLineItemID: 1, UnitPrice: decimal.NewFromInt(9), Quantity: decimal.NewFromInt(10), TotalPrice: decimal.NewFromInt(90)},
				}},
		},
	}
	builder := rfq.Builder{
		Now:   func() time.Time { return submitted.Add(48 * time.Hour) },
		NewID: func() uuid.UUID { return uuid.MustParse("6f1c1f4e-1d7a-4d8e-9a55-0d7d1b8e7c11") },
	}
	summary, err := builder.Build(&r, []rfq.Selection{
		{LineItemID: 1, SupplierID: 100, QuoteID: 11},
		{LineItemID: 2, SupplierID: 100, QuoteID: 11},
	})
	require.NoError(t, err)
	return summary
}

func TestWriteCSVQuotesEveryField(t *testing.T) {
	summary := sampleSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, summary))

	lines := strings.SplitN(buf.String(), "\r\n", 2)
	require.Equal(t, `"MR Line ID","Description","Selected Supplier ID","Selected Supplier Name","Unit Price","Total Price","Savings vs Best"`, lines[0])
	require.True(t, strings.HasPrefix(lines[1], `"1","Hex bolt 3/4"" x 2, zinc","100","Acme ""Fasteners""","10.01","100.05","-10.05"`+"\r\n"))
}

func TestCSVRoundTrip(t *testing.T) {
	summary := sampleSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, summary))

	records, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, records, len(summary.Rows))

	type tuple struct {
		line, supplier int64
		total          string
	}
	want := map[tuple]bool{}
	for _, row := range summary.Rows {
		want[tuple{row.LineItemID, row.SupplierID, row.TotalPrice.StringFixed(2)}] = true
	}
	got := map[tuple]bool{}
	for _, rec := range records {
		got[tuple{rec.LineItemID, rec.SupplierID, rec.TotalPrice.StringFixed(2)}] = true
	}
	require.Equal(t, want, got)
	require.Equal(t, "Nut\nM12", records[1].Description)
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c,d,e,f,g\r\n"))
	require.ErrorIs(t, err, ErrHeaderMismatch)
}

func TestFilename(t *testing.T) {
	require.Equal(t, "RFQ-2026-007-comparison.csv", Filename("RFQ-2026-007", "csv"))
	require.Equal(t, "RFQ_7-comparison.xlsx", Filename("RFQ/7", "xlsx"))
	require.Equal(t, "rfq-comparison.csv", Filename(" ", "csv"))
}

func TestWriteXLSX(t *testing.T) {
	summary := sampleSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, summary))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(selectionSheet)
	require.NoError(t, err)
	require.Len(t, rows, len(summary.Rows)+1)
	require.Equal(t, Header, rows[0])
	require.Equal(t, "100", rows[1][2])

	digest, err := f.GetCellValue(infoSheet, "B10")
	require.NoError(t, err)
	require.Equal(t, summary.Digest, digest)
}
