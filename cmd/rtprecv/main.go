package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/rtprecv/internal/banner"
	"github.com/sebas/rtprecv/internal/config"
	"github.com/sebas/rtprecv/internal/control"
	"github.com/sebas/rtprecv/internal/discovery"
	"github.com/sebas/rtprecv/internal/logger"
	"github.com/sebas/rtprecv/internal/mcast"
	"github.com/sebas/rtprecv/internal/session"
	"github.com/sebas/rtprecv/internal/sink"
	"github.com/sebas/rtprecv/internal/wire/sdpinfo"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	banner.Print("rtprecv", []banner.ConfigLine{
		{Label: "sink", Value: cfg.Sink},
		{Label: "sap_address", Value: cfg.SAPAddress},
		{Label: "sap_port", Value: fmt.Sprintf("%d", config.SAPPort)},
		{Label: "loglevel", Value: cfg.LogLevel},
	})

	sapEndpoint, err := mcast.Join(cfg.SAPAddress, config.SAPPort)
	if err != nil {
		slog.Error("[main] failed to join sap multicast group", "err", err)
		os.Exit(1)
	}
	defer sapEndpoint.Close()

	registry := session.NewRegistry()
	inspector := control.NewInspector(registry)

	hosts := func(info sdpinfo.Info) sink.Sink {
		return sink.NewLocalMockSink((20 * time.Millisecond).Microseconds(), 0)
	}

	loop := discovery.NewLoop(sapEndpoint, registry, hosts)
	reaper := discovery.NewReaper(registry, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	go reaper.Run(ctx)

	go statusLoop(ctx, inspector)

	slog.Info("[main] rtprecv ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("[main] received signal, shutting down", "signal", sig)
}

// statusLoop periodically logs a session count, exercising the
// read-only introspection surface.
func statusLoop(ctx context.Context, inspector *control.Inspector) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("[main] status", "sessions", inspector.Count())
		}
	}
}
