package api

import (
	"context"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/fees"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/portfolio"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy/builtins"
)

var d0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func panelRows() []domain.PanelRow {
	closes := []float64{100, 110, 121}
	var rows []domain.PanelRow
	for i, c := range closes {
		ref, cashRef := math.NaN(), math.NaN()
		if i < len(closes)-1 {
			ref, cashRef = closes[i+1], 1
		}
		d := d0.AddDate(0, 0, i)
		rows = append(rows,
			domain.PanelRow{Date: d, Asset: "SPY", Open: c, Close: c, ExecRefTPlus1: ref, Spread: math.NaN(), Volatility: math.NaN(), Indicators: domain.NoIndicators()},
			domain.PanelRow{Date: d, Asset: "CASH", Open: 1, Close: 1, ExecRefTPlus1: cashRef, Spread: math.NaN(), Volatility: math.NaN(), IsCash: true, Indicators: domain.NoIndicators()},
		)
	}
	return rows
}

// startServer serves a fully wired BacktestService over an in-memory
// listener and returns a connected client.
func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	panels := store.NewParquetStore(dir)
	if err := panels.WritePanel(ctx, "test", panelRows()); err != nil {
		t.Fatalf("WritePanel: %v", err)
	}
	db, err := store.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := strategy.NewRegistry()
	builtins.RegisterAll(reg, builtins.Options{Weights: map[string]float64{"SPY": 1}})
	exec := execution.DefaultConfig()
	svc := NewBacktestService(
		reg,
		strategy.NewBacktester(reg, db, db, nil, nil),
		engine.NewEngine(exec, fees.Config{}, nil, nil),
		panels,
		db,
		Defaults{Panel: "test", Account: portfolio.Config{InitialCash: 1000}, Execution: exec},
		nil,
	)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufconn", svc, nil)
	go func() {
		if err := srv.Serve(lis); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	out := new(structpb.Struct)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = conn.Invoke(ctx, method, in, out)
	return out, err
}

func TestHealth(t *testing.T) {
	conn := startServer(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestStrategies(t *testing.T) {
	conn := startServer(t)
	out, err := call(t, conn, MethodStrategies, nil)
	if err != nil {
		t.Fatalf("Strategies: %v", err)
	}
	names := out.GetFields()["strategies"].GetListValue().GetValues()
	if len(names) != 5 || names[0].GetStringValue() != "cash-only" {
		t.Errorf("strategies = %v", names)
	}
}

func TestRunAndHistory(t *testing.T) {
	conn := startServer(t)
	out, err := call(t, conn, MethodRun, map[string]any{
		"strategy": "fixed",
		"run_id":   "r1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f := out.GetFields()
	if got := f["final_value"].GetNumberValue(); math.Abs(got-1100) > 1e-9 {
		t.Errorf("final_value = %v, want 1100", got)
	}
	if got := f["steps"].GetNumberValue(); got != 2 {
		t.Errorf("steps = %v, want 2", got)
	}
	if f["run_id"].GetStringValue() != "r1" {
		t.Errorf("run_id = %q, want r1", f["run_id"].GetStringValue())
	}

	runs, err := call(t, conn, MethodRuns, nil)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if ids := runs.GetFields()["runs"].GetListValue().GetValues(); len(ids) != 1 || ids[0].GetStringValue() != "r1" {
		t.Errorf("runs = %v, want [r1]", ids)
	}

	snaps, err := call(t, conn, MethodSnapshots, map[string]any{"run_id": "r1"})
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if n := len(snaps.GetFields()["snapshots"].GetListValue().GetValues()); n != 2 {
		t.Errorf("len(snapshots) = %d, want 2", n)
	}
}

func TestRunErrors(t *testing.T) {
	conn := startServer(t)

	_, err := call(t, conn, MethodRun, map[string]any{"strategy": "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown strategy code = %v, want InvalidArgument", status.Code(err))
	}
	_, err = call(t, conn, MethodRun, map[string]any{"panel": "missing"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("missing panel code = %v, want NotFound", status.Code(err))
	}
	_, err = call(t, conn, MethodRun, map[string]any{"start": "02/01/2024"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad date code = %v, want InvalidArgument", status.Code(err))
	}
	_, err = call(t, conn, MethodSnapshots, map[string]any{"run_id": "none"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown run code = %v, want NotFound", status.Code(err))
	}
}

func TestQuote(t *testing.T) {
	conn := startServer(t)
	out, err := call(t, conn, MethodQuote, map[string]any{
		"orders": []any{
			map[string]any{"date": "2024-01-02", "asset": "SPY", "quantity": 10},
		},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	trades := out.GetFields()["trades"].GetListValue().GetValues()
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	tr := trades[0].GetStructValue().GetFields()
	if tr["p_exec"].GetNumberValue() != 110 || tr["q"].GetNumberValue() != 10 {
		t.Errorf("trade = %v, want q 10 at 110", tr)
	}

	_, err = call(t, conn, MethodQuote, map[string]any{
		"orders": []any{map[string]any{"asset": "SPY", "quantity": 1}},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("undated order code = %v, want InvalidArgument", status.Code(err))
	}
}
