package cli

import (
	"context"
	"os"

	"github.com/gabapcia/supplyledger/internal/pipeline"

	"github.com/urfave/cli/v3"
)

// Run initializes and executes the supplyledger CLI application.
//
// It registers all available commands, including:
//
//   - `start`: Starts the ledger pipeline and runs it until interrupted.
//   - `audit`: Verifies the integrity of the archived chain.
//   - `trace`: Prints the transaction trail of a single product.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - pl: The pipeline service implementation used by the start command.
//   - archive: The block archive read by the audit and trace commands; may
//     be nil when no durable storage is configured.
//   - difficulty: The proof-of-work difficulty audited chains are checked
//     against.
func Run(ctx context.Context, pl pipeline.Service, archive pipeline.BlockArchive, difficulty int) error {
	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "supplyledger",
		Description:           "Command-line interface for running and inspecting the supplyledger chain.",
		Usage:                 "supplyledger [command] [flags]",
		Commands: []*cli.Command{
			startPipelineCommand(pl),
			auditChainCommand(archive, difficulty),
			traceProductCommand(archive, difficulty),
		},
	}

	return app.Run(ctx, os.Args)
}
