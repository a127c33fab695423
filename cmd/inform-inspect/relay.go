package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/keystore"
	"github.com/dmke/unispi/internal/metrics"
	"github.com/dmke/unispi/internal/relay"
	"github.com/dmke/unispi/internal/txlog"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay inform traffic to a controller and log decoded exchanges",
	Long: `Run an HTTP relay between devices and the controller.

Every request is forwarded unchanged to the configured upstream and the
controller's response is returned unchanged. Both packets are decoded in
the background and written to the transaction log. Send SIGHUP to reload
the key file.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().String("listen", "", "listen address (overrides config)")
	relayCmd.Flags().String("upstream", "", "controller base URL (overrides config)")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("upstream"); v != "" {
		cfg.Upstream = v
	}
	gin.SetMode(gin.ReleaseMode)
	log := logrus.StandardLogger()

	keys, err := keystore.Open(cfg.KeysFile, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []relay.Option{
		relay.WithLogger(log),
		relay.WithMetrics(m),
		relay.WithClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	}
	var sink txlog.Sink
	if cfg.TxLog.Enabled {
		if sink, err = txlog.NewFileSink(cfg.TxLog); err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, relay.WithSink(sink))
	}

	dec := inform.NewDecoder(keys,
		inform.WithLogger(log),
		inform.WithObserver(m),
		inform.WithMaxPayloadSize(cfg.MaxPayloadSize))
	r := relay.New(cfg.Upstream, dec, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := keys.Reload(); err != nil {
				log.WithError(err).Error("cannot reload keys")
			}
		}
	}()

	servers := []*http.Server{{Addr: cfg.Listen, Handler: r.Handler()}}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Listen, Handler: mux})
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			log.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}
	log.WithField("upstream", cfg.Upstream).Info("relay started")

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(shutdownCtx)
	}
	r.Wait()
	log.Info("relay stopped")
	return err
}
