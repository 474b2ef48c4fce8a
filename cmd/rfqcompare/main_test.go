package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const fixture = "../../internal/cli/testdata/rfq.json"

func TestCompareCommandPrintsJSON(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	require.NoError(t, app.Run([]string{"rfqcompare", "compare", "--file", fixture, "--json", "--select", "1=100:501"}))

	var view struct {
		TotalSavings decimal.Decimal `json:"total_savings"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.Equal(t, "-10.00", view.TotalSavings.StringFixed(2))
}

func TestExportCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	require.NoError(t, app.Run([]string{"rfqcompare", "export", "--file", fixture, "--format", "xlsx", "--out", dir}))
	_, err := os.Stat(filepath.Join(dir, "RFQ-2024-007-comparison.xlsx"))
	require.NoError(t, err)
}
