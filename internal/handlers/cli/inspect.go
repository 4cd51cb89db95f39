package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pipeline"

	"github.com/urfave/cli/v3"
)

// errNoArchiveConfigured is returned by inspection commands when the process
// was started without durable block storage.
var errNoArchiveConfigured = errors.New("no block archive configured; set the redis address to enable inspection commands")

// loadArchivedChain reads the archived chain for offline inspection.
func loadArchivedChain(ctx context.Context, archive pipeline.BlockArchive) ([]ledger.Block, error) {
	if archive == nil {
		return nil, errNoArchiveConfigured
	}

	return archive.LoadChain(ctx)
}

// auditChainCommand returns a CLI command that verifies the archived chain:
// every block's back-link, self-hash, and proof-of-work prefix. The result
// localizes the first failing block and the check it failed.
//
// Usage example:
//
//	supplyledger audit
func auditChainCommand(archive pipeline.BlockArchive, difficulty int) *cli.Command {
	return &cli.Command{
		Name:        "audit",
		Description: "Verifies the archived chain and reports the first failing block, if any.",
		Usage:       "Runs a full integrity walk over the archived chain.",
		Action: func(ctx context.Context, c *cli.Command) error {
			chain, err := loadArchivedChain(ctx, archive)
			if err != nil {
				return err
			}

			report := ledger.VerifyBlocks(chain, difficulty)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(out))
			if !report.Valid {
				return fmt.Errorf("chain is invalid: %s at index %d", report.Kind, report.FailingIndex)
			}
			return nil
		},
	}
}

// traceProductCommand returns a CLI command that prints the full transaction
// trail of one product, in chain order.
//
// Usage example:
//
//	supplyledger trace --product P1
func traceProductCommand(archive pipeline.BlockArchive, difficulty int) *cli.Command {
	return &cli.Command{
		Name:        "trace",
		Description: "Prints every archived transaction referring to the given product, in chain order.",
		Usage:       "Traces a product through the archived chain. Must provide the product identifier.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "product",
				Usage:    "Product identifier to trace (e.g., P1)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			chain, err := loadArchivedChain(ctx, archive)
			if err != nil {
				return err
			}

			// rebuild at the archive's difficulty so the load path accepts
			// the stored proofs of work
			l := ledger.New(difficulty)
			if err := l.Load(chain); err != nil {
				return err
			}

			history := l.ProductHistory(c.String("product"))
			out, err := json.MarshalIndent(history, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}
}
