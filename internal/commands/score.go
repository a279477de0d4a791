package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/underwrite"
)

// cliTenant scopes offline scoring. Nothing is persisted under it.
const cliTenant = "cli"

func newScoreCommand(configPath *string) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "score <statement.json>",
		Short: "Score a statement file and print the scorecard as JSON",
		Long: "Reads a statement ({\"transactions\": [...]}) from a file, or stdin when the\n" +
			"path is \"-\", and prints its scorecard. Nothing is stored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logCfg := cfg.Logging
			logCfg.Format = "text"
			logger := newLogger(logCfg, os.Stderr)
			slog.SetDefault(logger)

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			svc, err := underwrite.NewService(underwrite.Options{RedFlagRules: cfg.Scoring.RedFlagRules})
			if err != nil {
				return err
			}

			eval, err := scoreStatement(cmd, svc, data)
			if err != nil {
				return err
			}
			logger.Info("statement scored",
				"score", eval.Scorecard.Score,
				"recommendation", eval.Scorecard.Recommendation,
				"transactions", eval.Metadata.TransactionCount,
				"valid", eval.Validation.Valid,
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if full {
				return enc.Encode(eval)
			}
			return enc.Encode(eval.Scorecard)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "print the full evaluation, metrics and validation included")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading statement: %w", err)
	}
	return data, nil
}

func scoreStatement(cmd *cobra.Command, svc *underwrite.Service, data []byte) (*domain.Evaluation, error) {
	var req domain.StatementRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing statement: %w", err)
	}
	txs, err := req.ToTransactions()
	if err != nil {
		return nil, fmt.Errorf("parsing statement: %w", err)
	}
	return svc.Evaluate(cmd.Context(), cliTenant, txs)
}
