package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/catalog/api"
	"github.com/najoast/catalog/bootstrap"
	"github.com/najoast/catalog/catalog"
	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
	"github.com/najoast/catalog/logging"
)

type simulateOptions struct {
	title      string
	collection string
	value      string
	repeat     int
	asJSON     bool
	timeout    time.Duration
}

// simulation is one AddTrack as seen by its caller.
type simulation struct {
	Caller   string         `json:"caller"`
	Outcome  string         `json:"outcome"`
	ExitCode int            `json:"exit_code,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Refund   ledger.Coins   `json:"refund"`
	Fees     ledger.Coins   `json:"fees"`
	Track    ledger.Address `json:"track"`
	Trace    []api.TxView   `json:"trace"`
	op       *core.Operation
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run AddTrack against an in-memory catalog and print the trace",
		Long: `Deploy a fresh catalog in memory, send AddTrack from one or more callers,
and print every transaction of the resulting operations.

With --repeat N, N callers add the same track concurrently: one of them
deploys it and the rest find it already listed.

Example:
  catalogd simulate --title Song --collection Album
  catalogd simulate --title Song --repeat 8 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "track title")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "collection title (omit for a standalone track)")
	cmd.Flags().StringVar(&opts.value, "value", "", "value attached to AddTrack (default: the fee estimate)")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 1, "number of concurrent callers")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "how long to wait for the operations")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, root *rootOptions, opts *simulateOptions) error {
	if opts.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cfg, err := root.load()
	if err != nil {
		return err
	}
	cfg.API.Enabled = false
	cfg.Store.Enabled = false

	log := logging.NewNop()
	if root.logLevel != "" {
		if log, err = logging.New(cfg.Log); err != nil {
			return err
		}
		defer log.Close()
	}

	app, err := bootstrap.NewApplication(cfg, log)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Shutdown(context.Background())

	sys := app.System()
	cat := app.Catalog()

	var collection *string
	if opts.collection != "" {
		collection = &opts.collection
	}
	value := sys.Fees().EstimateAddTrack(collection != nil)
	if opts.value != "" {
		if value, err = ledger.ParseCoins(opts.value); err != nil {
			return err
		}
	}

	results := make([]*simulation, opts.repeat)
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			caller := fmt.Sprintf("caller-%d", i+1)
			w, err := sys.OpenWallet(caller, cfg.Ledger.WalletFunding)
			if err != nil {
				return err
			}
			op, err := cat.AddTrack(gctx, w, value, opts.title, collection)
			if err != nil {
				return fmt.Errorf("%s: %w", caller, err)
			}
			if err := op.Wait(gctx); err != nil {
				return fmt.Errorf("%s: %w", caller, err)
			}
			results[i] = &simulation{Caller: caller, op: op}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := sys.Settle(ctx); err != nil {
		return err
	}

	var colAddr *ledger.Address
	if collection != nil {
		a := catalog.CollectionAddress(*collection, cat.Address())
		colAddr = &a
	}
	track := catalog.TrackAddress(opts.title, colAddr, cat.Address())
	for _, r := range results {
		ex, refund, ok := catalog.Outcome(r.op)
		r.Outcome = ex.Outcome.String()
		if !ok {
			r.Outcome = "no reply"
		}
		r.ExitCode = ex.ExitCode
		r.Reason = ex.Reason
		r.Refund = refund
		r.Fees = r.op.Fees()
		r.Track = track
		r.Trace = api.Trace(sys.Book(), r.op.Transactions())
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"value":   value,
			"results": results,
			"minted":  sys.Minted(),
			"supply":  sys.Supply(),
			"fees":    sys.FeesCollected(),
		})
	}

	fmt.Fprintf(out, "catalog %s, attached %s per request\n\n", cat.Address(), value)
	for _, r := range results {
		fmt.Fprintf(out, "%s: %s, refund %s, fees %s, %d transactions\n",
			r.Caller, r.Outcome, r.Refund, r.Fees, len(r.Trace))
		if r.Reason != "" {
			fmt.Fprintf(out, "  reason: %s (exit %d)\n", r.Reason, r.ExitCode)
		}
		for _, tx := range r.Trace {
			status := "ok"
			if !tx.Success {
				status = fmt.Sprintf("exit %d", tx.ExitCode)
			}
			flags := ""
			if tx.Deploy {
				flags += " deploy"
			}
			if tx.Bounced {
				flags += " bounced"
			}
			fmt.Fprintf(out, "  #%-4d %-10s -> %-10s %-16s %10s  %s%s\n",
				tx.LT, clip(tx.From), clip(tx.To), tx.Op, tx.Value, status, flags)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "track %s\nminted %s, supply %s, fees collected %s\n",
		track, sys.Minted(), sys.Supply(), sys.FeesCollected())
	return nil
}

func clip(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
