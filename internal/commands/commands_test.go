package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/underwriter/internal/api"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/underwrite"
)

const statementJSON = `{"transactions":[
	{"date":"2025-03-03","description":"STRIPE TRANSFER","amount":9000,"direction":"CREDIT","runningBalance":14000},
	{"date":"2025-03-05","description":"RENT - LANDLORD LLC","amount":3000,"direction":"DEBIT","runningBalance":11000},
	{"date":"2025-03-17","description":"STRIPE TRANSFER","amount":8000,"direction":"CREDIT","runningBalance":19000},
	{"date":"2025-03-20","description":"GUSTO PAYROLL","amount":6000,"direction":"DEBIT","runningBalance":13000},
	{"date":"2025-04-03","description":"STRIPE TRANSFER","amount":9500,"direction":"CREDIT","runningBalance":22500},
	{"date":"2025-04-05","description":"RENT - LANDLORD LLC","amount":3000,"direction":"DEBIT","runningBalance":19500},
	{"date":"2025-04-17","description":"STRIPE TRANSFER","amount":8500,"direction":"CREDIT","runningBalance":28000},
	{"date":"2025-04-20","description":"GUSTO PAYROLL","amount":6000,"direction":"DEBIT","runningBalance":22000}
]}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	t.Run("prints the scorecard", func(t *testing.T) {
		out, err := run(t, "", "score", writeFile(t, "statement.json", statementJSON))
		require.NoError(t, err)

		var sc domain.OverallScorecard
		require.NoError(t, json.Unmarshal([]byte(out), &sc))
		assert.Len(t, sc.Sections, 4)
		assert.GreaterOrEqual(t, sc.Score, 0)
		assert.LessOrEqual(t, sc.Score, 100)
		assert.NotEmpty(t, sc.Recommendation)
	})

	t.Run("reads stdin", func(t *testing.T) {
		out, err := run(t, statementJSON, "score", "-", "--full")
		require.NoError(t, err)

		var eval domain.Evaluation
		require.NoError(t, json.Unmarshal([]byte(out), &eval))
		require.NotNil(t, eval.Metrics)
		assert.Equal(t, 2, eval.Metrics.MonthsAnalyzed)
		assert.Equal(t, cliTenant, eval.TenantID)
		assert.Equal(t, 8, eval.Metadata.TransactionCount)
	})

	t.Run("rejects a bad row", func(t *testing.T) {
		bad := `{"transactions":[{"date":"2025-03-03","description":"X","amount":1,"direction":"UP"}]}`
		_, err := run(t, "", "score", writeFile(t, "bad.json", bad))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid direction")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "", "score", filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})

	t.Run("requires an argument", func(t *testing.T) {
		_, err := run(t, "", "score")
		require.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, domain.TierCommunity, cfg.Tier)
		assert.Equal(t, "sqlite", cfg.Repository.Driver)
	})

	t.Run("pro tier from env", func(t *testing.T) {
		t.Setenv("UNDERWRITER_TIER", "pro")
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, domain.TierPro, cfg.Tier)
		assert.Equal(t, "nats", cfg.EventBus.Type)
	})

	t.Run("file overrides", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "server:\n  port: 9191\nworker:\n  enabled: true\n  tenantIds: [acme]\n")
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 9191, cfg.Server.Port)
		assert.True(t, cfg.Worker.Enabled)
		assert.Equal(t, []string{"acme"}, cfg.Worker.TenantIDs)
		assert.Equal(t, "sqlite", cfg.Repository.Driver)
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("UNDERWRITER_TENANTS", "a, b")
		path := writeFile(t, "config.yaml", "worker:\n  tenantIds: [acme]\n")
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, cfg.Worker.TenantIDs)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "cache:\n  type: memcached\n")
		_, err := loadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.type")
	})
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["score"])
	assert.True(t, names["bench"])

	out, err := run(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestSetupTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("disabled keeps the global provider", func(t *testing.T) {
		shutdown := setupTracing(domain.TracingConfig{Enabled: false})
		assert.Same(t, prev, otel.GetTracerProvider())
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("enabled issues real trace IDs", func(t *testing.T) {
		shutdown := setupTracing(domain.TracingConfig{Enabled: true, ServiceName: "underwriter-test"})
		defer func() { assert.NoError(t, shutdown(context.Background())) }()

		_, span := otel.Tracer("test").Start(context.Background(), "op")
		defer span.End()
		assert.True(t, span.SpanContext().TraceID().IsValid())
		assert.True(t, span.SpanContext().IsSampled())
	})
}

func newBenchServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := underwrite.NewService(underwrite.Options{})
	require.NoError(t, err)
	srv := api.NewServer(domain.ServerConfig{}, api.Deps{Service: svc, Version: "bench"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestReadLabeled(t *testing.T) {
	input := `{"id":"a","defaulted":true,"transactions":[]}

{"defaulted":false,"transactions":[]}
{"id":"c","transactions":[]}
`
	got, err := readLabeled(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, got[0].Defaulted)
	assert.Equal(t, "line-3", got[1].ID)

	limited, err := readLabeled(strings.NewReader(input), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = readLabeled(strings.NewReader("{not json}\n"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestBenchMetrics(t *testing.T) {
	m := &BenchMetrics{TruePositives: 3, FalsePositives: 1, FalseNegatives: 3, TrueNegatives: 5}
	assert.InDelta(t, 0.75, m.Precision(), 1e-9)
	assert.InDelta(t, 0.5, m.Recall(), 1e-9)
	assert.InDelta(t, 0.6, m.F1(), 1e-9)

	empty := &BenchMetrics{}
	assert.Zero(t, empty.Precision())
	assert.Zero(t, empty.F1())
}

func TestBenchCommand(t *testing.T) {
	ts := newBenchServer(t)

	var stmt domain.StatementRequest
	require.NoError(t, json.Unmarshal([]byte(statementJSON), &stmt))

	var lines []string
	for i, defaulted := range []bool{false, true, false} {
		b, err := json.Marshal(LabeledStatement{
			ID:           fmt.Sprintf("s%d", i),
			Defaulted:    defaulted,
			Transactions: stmt.Transactions,
		})
		require.NoError(t, err)
		lines = append(lines, string(b))
	}
	lines = append(lines, `{"id":"empty","defaulted":false,"transactions":[]}`)
	path := writeFile(t, "bench.jsonl", strings.Join(lines, "\n"))

	out, err := run(t, "", "bench", path, "--url", ts.URL, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 4 statements")
	assert.Contains(t, out, "Processed:  4")
	assert.Contains(t, out, "Errors:     1")
}

func TestBenchCommandUnreachable(t *testing.T) {
	ts := newBenchServer(t)
	url := ts.URL
	ts.Close()

	_, err := run(t, "", "bench", writeFile(t, "bench.jsonl", ""), "--url", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}
