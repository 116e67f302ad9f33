// Command udipgpd runs the façade: it loads configuration, starts the
// config/ledger actor, reconciles the supplier registry, and serves
// Postgres wire-protocol connections until told to stop.
//
// Wiring follows the usual daemon shape: a flag-driven config path,
// background actor startup, an accept loop in its own goroutine, and
// signal-triggered graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/dispatch"
	"github.com/opsfolio/udi-pgp/internal/metrics"
	"github.com/opsfolio/udi-pgp/internal/session"
	"github.com/opsfolio/udi-pgp/internal/state"
	"github.com/opsfolio/udi-pgp/internal/supplier"
	"github.com/opsfolio/udi-pgp/internal/supplier/exec"
)

func main() {
	os.Exit(run())
}

func run() int {
	log.SetFlags(log.Lshortfile)

	var configPath string
	var verbose bool
	flag.StringVar(&configPath, "config", "udi-pgp.ini", "path to the INI configuration file")
	flag.BoolVar(&verbose, "verbose", false, "trace state manager messages")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config error: %v", err)
		return 1
	}

	registry := supplier.NewRegistry()
	registry.RegisterFactory(exec.TypeTag, exec.New)
	if err := registry.Reconcile(cfg.Suppliers); err != nil {
		log.Printf("initial supplier reconcile failed: %v", err)
		return 1
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Printf("listen on %s: %v", cfg.Addr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := state.NewManager(cfg, verbose)
	go mgr.Run(ctx, cfg)

	metrics.Init()
	startAncillaryServers(ctx, cfg)

	srv := &session.Server{
		Dispatcher: &dispatch.Dispatcher{Registry: registry, Manager: mgr},
		Username:   cfg.Username,
		Password:   cfg.Password,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("udipgpd listening on %s", cfg.Addr)
		serveErr <- srv.Serve(ctx, ln)
	}()

	select {
	case <-sigChan:
		log.Println("shutdown signal received")
		cancel()
		ln.Close()
		<-serveErr
		return 0
	case err := <-serveErr:
		if err != nil {
			log.Printf("serve error: %v", err)
			return 1
		}
		return 0
	}
}

// startAncillaryServers brings up the optional metrics and health HTTP
// listeners named in the config (§6). Neither is part of the wire
// protocol surface; both exit quietly with the process context.
func startAncillaryServers(ctx context.Context, cfg *config.Config) {
	if cfg.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
		go func() { <-ctx.Done(); srv.Close() }()
	}

	if cfg.Health != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		srv := &http.Server{Addr: cfg.Health, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("health server error: %v", err)
			}
		}()
		go func() { <-ctx.Done(); srv.Close() }()
	}
}
