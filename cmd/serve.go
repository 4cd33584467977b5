package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the skill over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var addr string

func init() {
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address, overriding the config file")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr == "" {
		addr = cfg.Server.Addr
	}

	s, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.New()
	p, run, err := newProvider(m)
	if err != nil {
		return err
	}

	srv := server.New(newSkill(s, p, m), m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	return err
}
