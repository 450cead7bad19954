/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dsctl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srediag/dscore/adapter"
	"github.com/srediag/dscore/internal/logging"
	"github.com/srediag/dscore/pkg/audit"
	"github.com/srediag/dscore/pkg/health"
	"github.com/srediag/dscore/pkg/manager"
	"github.com/srediag/dscore/pkg/native"
	"github.com/srediag/dscore/pkg/telemetry"
)

const (
	shutdownTimeout    = 10 * time.Second
	auditFlushInterval = time.Second
)

// RunOptions is the options of the run sub command.
type RunOptions struct {
	ConfigFile string
	IOStreams

	loader native.Loader
	// ready receives the bound address once components are started.
	ready chan<- string
}

func NewCmdRun(streams IOStreams) *cobra.Command {
	o := &RunOptions{IOStreams: streams}
	cmd := &cobra.Command{
		Use:   "run --config FILE",
		Short: "Start the configured components and serve metrics and health",
		Long: `Start every configured component, then serve /metrics, /live and /ready
until interrupted. Components that fail to start are reported and keep the host
unready; the others keep running.`,
		Example: `  # Run the components declared in components.yaml
  dsctl run --config components.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&o.ConfigFile, "config", "c", "", "configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// Run starts the components and blocks until ctx is done.
func (o *RunOptions) Run(ctx context.Context) error {
	cfg, err := LoadConfig(o.ConfigFile)
	if err != nil {
		return err
	}
	logger := logging.Logger().Named("dsctl")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tracing, err := adapter.GlobalTracing()
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	ring := audit.NewRing(cfg.Manager.AuditCapacity)
	defer ring.Close()
	opts := []manager.Option{
		manager.WithAudit(ring),
		manager.WithLogger(logger),
		manager.WithMetrics(telemetry.NewMetrics(reg)),
		manager.WithTracing(tracing),
	}
	if o.loader != nil {
		opts = append(opts, manager.WithLoader(o.loader))
	}
	m, err := manager.New(cfg.Module, &cfg.Manager, opts...)
	if err != nil {
		return err
	}
	for _, desc := range cfg.Components {
		if _, err := m.Add(desc); err != nil {
			return errors.Join(err, m.Shutdown(ctx))
		}
	}
	reg.MustRegister(adapter.NewStateCollector(m))
	events := adapter.NewZapAudit(logger)

	if err := m.StartAll(ctx); err != nil {
		logger.Error("some components failed to start", zap.Error(err))
	}
	for _, name := range m.Components() {
		state, _ := m.ComponentState(name)
		fmt.Fprintf(o.Out, "%s\t%s\n", name, state)
	}

	var srv *http.Server
	errc := make(chan error, 1)
	if cfg.Listen != "" {
		hh := health.NewHandler(m, health.Options{
			MaxRSSBytes:   cfg.Manager.MaxRSSBytes,
			MaxGoroutines: cfg.MaxGoroutines,
			Registerer:    reg,
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/live", hh.LiveEndpoint)
		mux.HandleFunc("/ready", hh.ReadyEndpoint)
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return errors.Join(fmt.Errorf("listen %s: %w", cfg.Listen, err), m.Shutdown(ctx))
		}
		logger.Info("serving", zap.Stringer("addr", ln.Addr()))
		if o.ready != nil {
			o.ready <- ln.Addr().String()
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	} else if o.ready != nil {
		o.ready <- ""
	}

	wctx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if cfg.Watch {
		w, err := adapter.NewLibraryWatcher(m, cfg.WatchDebounce, logger)
		if err != nil {
			logger.Warn("libraries not watched", zap.Error(err))
		} else {
			defer w.Close()
			for _, desc := range cfg.Components {
				if err := w.Watch(desc.Name, desc.Library); err != nil {
					logger.Warn("library not watched", zap.Error(err))
				}
			}
			go w.Run(wctx)
		}
	}

	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()
	var serveErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case serveErr = <-errc:
			break wait
		case <-ticker.C:
			events.Forward(ring)
		}
	}

	stopWatch()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if srv != nil {
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.Shutdown(sctx); err != nil {
		errs = append(errs, err)
	}
	events.Forward(ring)
	if n := ring.Dropped(); n > 0 {
		logger.Warn("audit events dropped", zap.Uint64("count", n))
	}
	return errors.Join(errs...)
}
