package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/quantora/trademetrics/internal/analytics"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/urfave/cli/v3"
)

// reportAction computes a metrics report for one CSV export offline and
// writes it as YAML.
func reportAction(ctx context.Context, cmd *cli.Command) error {
	file, err := os.Open(cmd.String("csv"))
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	rows, err := analytics.ReadCSVRows(file)
	if err != nil {
		return fmt.Errorf("failed to read csv: %w", err)
	}

	partition, err := analytics.ParseRecords(rows, cmd.String("client"), cmd.Int("magic"))
	if err != nil {
		return fmt.Errorf("failed to parse trades: %w", err)
	}

	report, err := analytics.Compute(partition)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	output := cmd.String("output")
	if err := types.WriteMetricsReport(output, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	log.Printf("Report for %d trades written to %s", report.Summary.TradeCount, output)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "trademetrics-report",
		Usage: "Compute a performance metrics report from a CSV export",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "csv",
				Aliases:  []string{"f"},
				Usage:    "Path to the trades CSV export",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "client",
				Aliases: []string{"c"},
				Usage:   "Client identifier recorded in the report",
				Value:   "local",
			},
			&cli.IntFlag{
				Name:    "magic",
				Aliases: []string{"m"},
				Usage:   "Magic number to report on (0 keeps every trade)",
				Value:   0,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path of the YAML report to write",
				Value:   "report.yaml",
			},
		},
		Action: reportAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
