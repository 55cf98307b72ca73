// Package tplus is a Go client for the backtest gRPC server.
package tplus

import (
	"context"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names served by the backtest server.
const (
	ServiceName = "tplus.v1.Backtest"

	methodRun        = "/" + ServiceName + "/Run"
	methodQuote      = "/" + ServiceName + "/Quote"
	methodStrategies = "/" + ServiceName + "/Strategies"
	methodRuns       = "/" + ServiceName + "/Runs"
)

// Client provides a Go SDK for interacting with the backtest server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// WithTimeout bounds every call. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// NewClient creates a client for the server at addr. The connection is
// established lazily on the first call.
func NewClient(addr string, opts ...Option) (*Client, error) {
	o := clientOptions{
		timeout:  30 * time.Second,
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
	for _, opt := range opts {
		opt(&o)
	}
	conn, err := grpc.NewClient(addr, o.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: o.timeout}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RunRequest selects a backtest. Zero fields use the server defaults.
type RunRequest struct {
	RunID       string
	Strategy    string
	Panel       string
	Assets      []string
	Start       string // YYYY-MM-DD
	End         string // YYYY-MM-DD
	InitialCash float64
}

// RunSummary is the outcome of a backtest. Ratios that are undefined for
// the run are NaN.
type RunSummary struct {
	RunID        string
	Strategy     string
	Steps        int
	InitialValue float64
	FinalValue   float64
	TotalFees    float64
	TotalCost    float64
	Trades       int
	TotalReturn  float64
	SharpeRatio  float64
	MaxDrawdown  float64
}

// Run executes a backtest on the server.
func (c *Client) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	fields := map[string]any{}
	setString(fields, "run_id", req.RunID)
	setString(fields, "strategy", req.Strategy)
	setString(fields, "panel", req.Panel)
	setString(fields, "start", req.Start)
	setString(fields, "end", req.End)
	if req.InitialCash > 0 {
		fields["initial_cash"] = req.InitialCash
	}
	if len(req.Assets) > 0 {
		assets := make([]any, len(req.Assets))
		for i, a := range req.Assets {
			assets[i] = a
		}
		fields["assets"] = assets
	}

	out, err := c.invoke(ctx, methodRun, fields)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	return &RunSummary{
		RunID:        f["run_id"].GetStringValue(),
		Strategy:     f["strategy"].GetStringValue(),
		Steps:        int(f["steps"].GetNumberValue()),
		InitialValue: f["initial_value"].GetNumberValue(),
		FinalValue:   f["final_value"].GetNumberValue(),
		TotalFees:    f["total_fees"].GetNumberValue(),
		TotalCost:    f["total_cost"].GetNumberValue(),
		Trades:       int(f["trades"].GetNumberValue()),
		TotalReturn:  numberOrNaN(f["total_return"]),
		SharpeRatio:  numberOrNaN(f["sharpe_ratio"]),
		MaxDrawdown:  numberOrNaN(f["max_drawdown"]),
	}, nil
}

// Quote prices orders without running an account. Each order is a
// (date, asset, quantity) triple; the raw response is returned.
func (c *Client) Quote(ctx context.Context, panel string, orders []Order) (*structpb.Struct, error) {
	list := make([]any, len(orders))
	for i, o := range orders {
		list[i] = map[string]any{"date": o.Date, "asset": o.Asset, "quantity": o.Quantity}
	}
	fields := map[string]any{"orders": list}
	setString(fields, "panel", panel)
	return c.invoke(ctx, methodQuote, fields)
}

// Order is a quote request line.
type Order struct {
	Date     string
	Asset    string
	Quantity float64
}

// Strategies lists the strategy names known to the server.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	out, err := c.invoke(ctx, methodStrategies, nil)
	if err != nil {
		return nil, err
	}
	return stringValues(out, "strategies"), nil
}

// Runs lists the stored run ids.
func (c *Client) Runs(ctx context.Context) ([]string, error) {
	out, err := c.invoke(ctx, methodRuns, nil)
	if err != nil {
		return nil, err
	}
	return stringValues(out, "runs"), nil
}

// Healthy reports whether the server's backtest service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func setString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func stringValues(s *structpb.Struct, key string) []string {
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func numberOrNaN(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}
