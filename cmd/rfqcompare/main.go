package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	clitools "github.com/odyssey-erp/odyssey-sourcing/internal/cli"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rfqcompare",
		Usage: "Compare supplier quotes for an RFQ exported as JSON",
		Commands: []*cli.Command{
			compareCmd,
			exportCmd,
		},
	}
}

var sharedFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Required: true,
		Usage:    "specify the input rfq.json",
	},
	&cli.StringFlag{
		Name:  "tie-break",
		Value: string(rfq.DefaultTieBreak),
		Usage: "tie-break policy (first_submitted, iteration_order, fastest_lead_time)",
	},
	&cli.StringFlag{
		Name:  "currency",
		Value: "USD",
		Usage: "currency assumed when the rfq has none",
	},
	&cli.StringSliceFlag{
		Name:    "select",
		Aliases: []string{"s"},
		Usage:   "override a line as line=supplier:quote (repeatable)",
	},
	&cli.BoolFlag{
		Name:  "no-seed",
		Usage: "start from an empty allocation instead of the best-price recommendation",
	},
}

func compareOptions(ctx *cli.Context) clitools.CompareOptions {
	return clitools.CompareOptions{
		File:       ctx.String("file"),
		TieBreak:   ctx.String("tie-break"),
		Currency:   ctx.String("currency"),
		Selections: ctx.StringSlice("select"),
		NoSeed:     ctx.Bool("no-seed"),
		JSONOutput: ctx.Bool("json"),
		Stdout:     ctx.App.Writer,
		Stderr:     ctx.App.ErrWriter,
	}
}

var compareCmd = &cli.Command{
	Name:    "compare",
	Usage:   "Print the comparison matrix and savings",
	Aliases: []string{"c"},
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "emit JSON instead of a table"},
	}, sharedFlags...),
	Action: func(ctx *cli.Context) error {
		if code := clitools.CompareCommand(ctx.Context, compareOptions(ctx)); code != clitools.ExitOK {
			return cli.Exit("", code)
		}
		return nil
	},
}

var exportCmd = &cli.Command{
	Name:    "export",
	Usage:   "Write {rfq_number}-comparison.csv or .xlsx",
	Aliases: []string{"e"},
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "format", Value: "csv", Usage: "csv or xlsx"},
		&cli.StringFlag{Name: "out", Value: ".", Usage: "output directory"},
	}, sharedFlags...),
	Action: func(ctx *cli.Context) error {
		code := clitools.ExportCommand(ctx.Context, clitools.ExportOptions{
			CompareOptions: compareOptions(ctx),
			Format:         ctx.String("format"),
			OutDir:         ctx.String("out"),
		})
		if code != clitools.ExitOK {
			return cli.Exit("", code)
		}
		return nil
	},
}
