package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// LabeledStatement is one line of a bench file: a statement plus whether
// the merchant went on to default.
type LabeledStatement struct {
	ID           string                      `json:"id"`
	Defaulted    bool                        `json:"defaulted"`
	Transactions []domain.TransactionRequest `json:"transactions"`
}

// BenchMetrics tracks bench results. A decline is a positive prediction.
type BenchMetrics struct {
	TruePositives  int64 // Defaulted and declined
	FalsePositives int64 // Repaid but declined
	TrueNegatives  int64 // Repaid and approved
	FalseNegatives int64 // Defaulted but approved

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Precision is the share of declines that defaulted.
func (m *BenchMetrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is the share of defaults that were declined.
func (m *BenchMetrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *BenchMetrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func newBenchCommand() *cobra.Command {
	var (
		baseURL  string
		tenantID string
		workers  int
		limit    int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "bench <statements.jsonl>",
		Short: "Replay labeled statements against a running server and report decline accuracy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if err := checkHealth(cmd.Context(), baseURL); err != nil {
				return fmt.Errorf("server not reachable at %s: %w", baseURL, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening bench file: %w", err)
			}
			defer f.Close()

			statements, err := readLabeled(f, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Loaded %d statements, running with %d workers\n", len(statements), workers)

			start := time.Now()
			m, err := runBench(cmd.Context(), statements, baseURL, tenantID, workers, verboseWriter(out, verbose))
			if err != nil {
				return err
			}
			printBench(out, m, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "underwriter base URL")
	cmd.Flags().StringVar(&tenantID, "tenant", "bench", "tenant ID for requests")
	cmd.Flags().IntVar(&workers, "workers", 10, "number of concurrent workers")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum statements to replay (0 = all)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print each statement result")

	return cmd
}

func verboseWriter(w io.Writer, on bool) io.Writer {
	if !on {
		return nil
	}
	return w
}

func checkHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// readLabeled parses JSON Lines, skipping blank lines.
func readLabeled(r io.Reader, limit int) ([]LabeledStatement, error) {
	var out []LabeledStatement
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var s LabeledStatement
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("line-%d", line)
		}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading bench file: %w", err)
	}
	return out, nil
}

// runBench posts every statement to /scorecards. Request failures are
// counted, not returned; only context cancellation stops the run.
func runBench(ctx context.Context, statements []LabeledStatement, baseURL, tenantID string, workers int, verbose io.Writer) (*BenchMetrics, error) {
	if workers < 1 {
		workers = 1
	}
	m := &BenchMetrics{}
	client := &http.Client{Timeout: 30 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, s := range statements {
		s := s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			sc, err := scoreRemote(ctx, client, baseURL, tenantID, s)
			atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
			atomic.AddInt64(&m.TotalProcessed, 1)

			if err != nil {
				atomic.AddInt64(&m.TotalErrors, 1)
				if verbose != nil {
					fmt.Fprintf(verbose, "ERROR: %s -> %v\n", s.ID, err)
				}
				return nil
			}

			predicted := sc.Recommendation.IsDecline()
			switch {
			case predicted && s.Defaulted:
				atomic.AddInt64(&m.TruePositives, 1)
			case predicted && !s.Defaulted:
				atomic.AddInt64(&m.FalsePositives, 1)
			case !predicted && !s.Defaulted:
				atomic.AddInt64(&m.TrueNegatives, 1)
			default:
				atomic.AddInt64(&m.FalseNegatives, 1)
			}

			if verbose != nil {
				mark := "✓"
				if predicted != s.Defaulted {
					mark = "✗"
				}
				fmt.Fprintf(verbose, "%s %-12s | defaulted: %-5v | score: %3d | %s\n",
					mark, s.ID, s.Defaulted, sc.Score, sc.Recommendation)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return m, err
	}
	return m, nil
}

func scoreRemote(ctx context.Context, client *http.Client, baseURL, tenantID string, s LabeledStatement) (*domain.OverallScorecard, error) {
	body, err := json.Marshal(domain.StatementRequest{Transactions: s.Transactions})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/scorecards", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var eval domain.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&eval); err != nil {
		return nil, err
	}
	if eval.Scorecard == nil {
		return nil, fmt.Errorf("response has no scorecard")
	}
	return eval.Scorecard, nil
}

func printBench(w io.Writer, m *BenchMetrics, duration time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BENCH RESULTS")
	fmt.Fprintf(w, "   Processed:  %d\n", m.TotalProcessed)
	fmt.Fprintf(w, "   Errors:     %d\n", m.TotalErrors)

	fmt.Fprintln(w, "\nCONFUSION MATRIX")
	fmt.Fprintln(w, "                     Predicted")
	fmt.Fprintln(w, "                  DECLINE    APPROVE")
	fmt.Fprintf(w, "   Defaulted  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Fprintf(w, "   Repaid     │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Fprintln(w, "\nDETECTION METRICS")
	fmt.Fprintf(w, "   Precision:  %.4f\n", m.Precision())
	fmt.Fprintf(w, "   Recall:     %.4f\n", m.Recall())
	fmt.Fprintf(w, "   F1-Score:   %.4f\n", m.F1())

	fmt.Fprintln(w, "\nPERFORMANCE")
	fmt.Fprintf(w, "   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if ok := m.TotalProcessed - m.TotalErrors; m.TotalProcessed > 0 {
		fmt.Fprintf(w, "   Avg Latency:     %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Fprintf(w, "   Throughput:      %.2f statements/sec\n", float64(ok)/duration.Seconds())
	}
	fmt.Fprintln(w)
}
