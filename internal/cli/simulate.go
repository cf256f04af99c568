package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Resources   int
	Stock       int
	Orders      int
	Concurrency int
	MaxItems    int
	MaxQuantity int
	Seed        uint64
	Metrics     bool
}

// SimulationReport summarizes a simulate run.
type SimulationReport struct {
	Orders    int                         `json:"orders"`
	Confirmed int                         `json:"confirmed"`
	Rejected  map[string]int              `json:"rejected"`
	Duration  time.Duration               `json:"duration"`
	Resources []ResourceReport            `json:"resources"`
	Metrics   map[string]map[string]int64 `json:"metrics,omitempty"`
}

// ResourceReport is the end state of one simulated resource.
type ResourceReport struct {
	ResourceKey uuid.UUID `json:"resourceKey"`
	Initial     int       `json:"initial"`
	Confirmed   int       `json:"confirmed"`
	Available   int       `json:"available"`
	Balanced    bool      `json:"balanced"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fire concurrent random orders at freshly seeded stock",
		Long: `Fire concurrent random orders at freshly seeded stock and check that
every resource balances: initial stock minus confirmed quantity must
equal what is still available.

Exits 1 if any resource does not balance.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Resources, "resources", 3, "number of resources to seed")
	cmd.Flags().IntVar(&opts.Stock, "stock", 10, "initial quantity per resource")
	cmd.Flags().IntVarP(&opts.Orders, "orders", "n", 50, "number of orders to place")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 8, "orders in flight at once")
	cmd.Flags().IntVar(&opts.MaxItems, "max-items", 2, "maximum line items per order")
	cmd.Flags().IntVar(&opts.MaxQuantity, "max-qty", 3, "maximum quantity per line item")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "collect and report OpenTelemetry counters")

	return cmd
}

func (o *SimulateOptions) validate() error {
	switch {
	case o.Resources < 1, o.Orders < 1, o.Concurrency < 1:
		return errors.New("--resources, --orders, and --concurrency must be at least 1")
	case o.Stock < 0:
		return errors.New("--stock must not be negative")
	case o.MaxItems < 1, o.MaxQuantity < 1:
		return errors.New("--max-items and --max-qty must be at least 1")
	}
	return nil
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	if err := opts.validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	var (
		reader *sdkmetric.ManualReader
		extra  []ordersaga.Option
	)
	if opts.Metrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(context.Background())
		otel.SetMeterProvider(provider)
		extra = append(extra, ordersaga.WithMetrics(observability.NewMetricsRecorder()))
	}

	svc, _, err := opts.openService(ctx, cmd, extra...)
	if err != nil {
		return err
	}
	defer svc.Close()

	keys := make([]uuid.UUID, opts.Resources)
	for i := range keys {
		keys[i] = uuid.New()
		if _, err := svc.Store().Seed(ctx, keys[i], opts.Stock); err != nil {
			return WrapExitError(ExitCommandError, "seed", err)
		}
	}
	requests := opts.requests(keys)
	out.VerboseLog("seeded %d resources, placing %d orders", len(keys), len(requests))

	report := SimulationReport{Orders: len(requests), Rejected: make(map[string]int)}
	confirmedQty := make(map[uuid.UUID]int)
	var mu sync.Mutex

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, req := range requests {
		g.Go(func() error {
			_, err := svc.InitiateOrder(gctx, req)
			mu.Lock()
			defer mu.Unlock()

			var ferr *ordersaga.FlowError
			switch {
			case err == nil:
				report.Confirmed++
				for _, it := range req.Items {
					confirmedQty[it.ResourceKey] += it.Quantity
				}
			case errors.As(err, &ferr):
				report.Rejected[ferr.Code()]++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "simulation aborted", err)
	}
	report.Duration = time.Since(start)

	balanced := true
	for _, key := range keys {
		rec, err := svc.Store().Get(ctx, key)
		if err != nil {
			return WrapExitError(ExitCommandError, "load "+key.String(), err)
		}
		r := ResourceReport{
			ResourceKey: key,
			Initial:     opts.Stock,
			Confirmed:   confirmedQty[key],
			Available:   rec.QuantityAvailable,
		}
		r.Balanced = r.Initial-r.Confirmed == r.Available
		balanced = balanced && r.Balanced
		report.Resources = append(report.Resources, r)
	}

	if reader != nil {
		if report.Metrics, err = collectCounters(ctx, reader); err != nil {
			return WrapExitError(ExitCommandError, "collect metrics", err)
		}
	}

	if err := out.Success(report, report.print); err != nil {
		return err
	}
	if !balanced {
		return NewExitError(ExitFailure, "stock does not balance")
	}
	return nil
}

// requests builds the random order set up front so runs with the same
// seed place the same orders.
func (o *SimulateOptions) requests(keys []uuid.UUID) []ordersaga.OrderRequest {
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed))
	reqs := make([]ordersaga.OrderRequest, o.Orders)
	for i := range reqs {
		n := 1 + rng.IntN(min(o.MaxItems, len(keys)))
		picked := rng.Perm(len(keys))[:n]
		req := ordersaga.OrderRequest{UserID: fmt.Sprintf("sim-user-%d", i%7)}
		for _, idx := range picked {
			req.Items = append(req.Items, ordersaga.ItemRequest{
				ResourceKey: keys[idx],
				Quantity:    1 + rng.IntN(o.MaxQuantity),
			})
		}
		reqs[i] = req
	}
	return reqs
}

// collectCounters returns every int64 counter keyed by metric name and
// then by its outcome or kind attribute.
func collectCounters(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			byLabel := make(map[string]int64)
			for _, dp := range sum.DataPoints {
				label := "total"
				if v, ok := dp.Attributes.Value("outcome"); ok {
					label = v.AsString()
				} else if v, ok := dp.Attributes.Value("kind"); ok {
					label = v.AsString()
				}
				byLabel[label] += dp.Value
			}
			out[m.Name] = byLabel
		}
	}
	return out, nil
}

func (r SimulationReport) print(w io.Writer) {
	fmt.Fprintf(w, "orders: %d confirmed: %d in %s\n", r.Orders, r.Confirmed, r.Duration.Round(time.Millisecond))
	codes := make([]string, 0, len(r.Rejected))
	for code := range r.Rejected {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  rejected %s: %d\n", code, r.Rejected[code])
	}
	for _, res := range r.Resources {
		status := "ok"
		if !res.Balanced {
			status = "UNBALANCED"
		}
		fmt.Fprintf(w, "%s\tinitial=%d confirmed=%d available=%d %s\n",
			res.ResourceKey, res.Initial, res.Confirmed, res.Available, status)
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s %v\n", name, r.Metrics[name])
	}
}
