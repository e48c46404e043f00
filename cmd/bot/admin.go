package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/milestone"
	"SignalSentinel/internal/strategy"
)

func newStrategyCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "strategy", Short: "Show or switch a tenant's active strategy"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <tenant>",
			Short: "Print the active and queued strategy",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*cfgPath, func(ctx context.Context, a *app) error {
					if _, err := a.tenant(args[0]); err != nil {
						return err
					}
					if _, err := a.switches.Active(ctx, args[0]); err != nil {
						return err
					}
					sel, err := a.switches.Selection(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "active: %s\nqueued: %s\navailable: %v\n", sel.Active, sel.Queued, a.registry.IDs())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <tenant> <strategy>",
			Short: "Switch now when flat, otherwise queue the switch",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*cfgPath, func(ctx context.Context, a *app) error {
					if _, err := a.tenant(args[0]); err != nil {
						return err
					}
					out, err := a.switches.SetActive(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					if out.Deferred {
						fmt.Fprintf(cmd.OutOrStdout(), "queued %s behind open signal %s\n", args[1], out.BlockedBy)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "active strategy is now %s\n", args[1])
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage per-tenant strategy configuration overrides"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <tenant> <strategy>",
			Short: "Print the resolved configuration",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*cfgPath, func(ctx context.Context, a *app) error {
					if !a.registry.Known(args[1]) {
						return fmt.Errorf("unknown strategy %q", args[1])
					}
					s := a.registry.Resolve(args[1])
					s.LoadConfig(ctx, args[0])
					p, ok := s.(interface{ Params() strategy.Params })
					if !ok {
						return errors.New("strategy exposes no parameters")
					}
					overrides, err := a.store.StrategyConfig(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					for _, k := range p.Params().Keys() {
						mark := ""
						if _, set := overrides[k]; set {
							mark = " *"
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s%s\n", k, strconv.FormatFloat(p.Params().F(k), 'f', -1, 64), mark)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <tenant> <strategy> <key> <value>",
			Short: "Store an override; applies on the next cycle",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*cfgPath, func(ctx context.Context, a *app) error {
					if !a.registry.Known(args[1]) {
						return fmt.Errorf("unknown strategy %q", args[1])
					}
					if err := strategy.ValidateOverride(a.registry.Resolve(args[1]), args[2], args[3]); err != nil {
						return err
					}
					return a.store.SetStrategyConfig(ctx, args[0], args[1], args[2], args[3])
				})
			},
		},
		&cobra.Command{
			Use:   "unset <tenant> <strategy> <key>",
			Short: "Remove an override",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(*cfgPath, func(ctx context.Context, a *app) error {
					return a.store.DeleteStrategyConfig(ctx, args[0], args[1], args[2])
				})
			},
		},
	)
	return cmd
}

func newSignalCmd(cfgPath *string) *cobra.Command {
	var price float64
	cancel := &cobra.Command{
		Use:   "cancel <tenant>",
		Short: "Cancel the tenant's live signal and announce it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				t, err := a.tenant(args[0])
				if err != nil {
					return err
				}
				sig, err := a.store.GetOpenSignal(ctx, t.ID)
				if err != nil {
					return err
				}
				if sig == nil {
					return fmt.Errorf("tenant %s has no open signal", t.ID)
				}
				px := price
				if px <= 0 {
					if px, err = a.provider.Price(ctx, sig.Symbol); err != nil {
						return fmt.Errorf("no price available, pass --price: %w", err)
					}
				}
				res, err := a.lifecycle.Close(ctx, sig, lifecycle.ExitCancelled, px)
				if err != nil {
					return err
				}
				if res == nil {
					return fmt.Errorf("signal %s was closed concurrently", sig.ID)
				}
				if a.milestones.Claim(ctx, sig.ID, milestone.KeyClosed) {
					if _, err := a.telegram.Deliver(ctx, a.format.Closed(sig, *res, lifecycle.ExitCancelled), t.ChatID); err != nil {
						return fmt.Errorf("signal cancelled but announcement failed: %w", err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signal %s cancelled at %.*f (%+.1f pips)\n",
					sig.ID, int(a.cfg.Instrument.PriceDecimals), px, res.Pips)
				return nil
			})
		},
	}
	cancel.Flags().Float64Var(&price, "price", 0, "closing price; defaults to the live quote")

	cmd := &cobra.Command{Use: "signal", Short: "Operate on live signals"}
	cmd.AddCommand(cancel)
	return cmd
}

func withApp(cfgPath string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfgPath, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}
