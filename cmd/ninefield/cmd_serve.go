package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/remote"
)

// #region serve-cmd
func newServePolicyCmd(root *rootOptions) *cobra.Command {
	var (
		addr   string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "serve-policy",
		Short: "Serve local field policies over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log, err := root.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			policies, err := localPolicies(field.NewBank(cfg, log), fields)
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			srv := grpc.NewServer()
			remote.RegisterPolicyServer(srv, policies)
			log.Info("serving field policies", zap.String("addr", lis.Addr().String()), zap.Int("fields", len(policies)))
			return serve(ctx, srv, lis)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("NINEFIELD_POLICY_ADDR", "localhost:50051"), "listen address")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to serve (default: all)")
	return cmd
}

// #endregion serve-cmd

// #region serve-helpers
func localPolicies(bank *field.Bank, names []string) (map[field.ID]field.Policy, error) {
	ids := field.All()
	if len(names) > 0 {
		ids = ids[:0]
		for _, n := range names {
			id, err := field.ParseID(n)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	out := make(map[field.ID]field.Policy, len(ids))
	for _, id := range ids {
		out[id] = bank.Module(id)
	}
	return out, nil
}

func serve(ctx context.Context, srv *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()
	select {
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// #endregion serve-helpers
