package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/adascale/scaler/cluster"
	"github.com/inference-sim/adascale/scaler/mutator"
	"github.com/inference-sim/adascale/scaler/roster"
)

var (
	serveAddr     string // HTTP listen address
	serveNATSURL  string // Optional NATS server to answer on
	serveSubject  string // NATS subject prefix
	serveCapacity int    // Largest pool the simulated manager accepts
	serveInitial  int    // Pool size the manager starts with
)

// serveCmd runs a simulated cluster manager that accepts membership changes
// over HTTP and, optionally, NATS. It pairs with `run --mutator http|nats`.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated cluster manager for the http and nats mutators",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		cfg := cluster.DefaultConfig()
		cfg.Capacity = serveCapacity
		c := cluster.New(cfg, serveInitial)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveNATSURL != "" {
			nc, err := nats.Connect(serveNATSURL, nats.Name("adascale-manager"))
			if err != nil {
				logrus.Fatalf("Connecting to NATS: %v", err)
			}
			defer nc.Close()
			if _, err := mutator.Serve(nc, serveSubject, loggingHandler{c}); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Answering %s.* on %s", serveSubject, serveNATSURL)
		}

		srv := &http.Server{Addr: serveAddr, Handler: mutator.NewHTTPHandler(loggingHandler{c}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logrus.Infof("Cluster manager listening on %s with %d workers", serveAddr, serveInitial)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server: %v", err)
		}
		logrus.Infof("Cluster manager stopped at %d workers", c.Workers())
	},
}

// loggingHandler logs every membership change applied to the cluster.
type loggingHandler struct {
	c *cluster.Cluster
}

func (h loggingHandler) AddWorker(size int, w roster.Worker) error {
	if err := h.c.AddWorker(size, w); err != nil {
		logrus.Warnf("add %v refused: %v", w, err)
		return err
	}
	logrus.Infof("added %v, pool at %d workers", w, h.c.Workers())
	return nil
}

func (h loggingHandler) RemoveWorker(size int, w roster.Worker) error {
	if err := h.c.RemoveWorker(size, w); err != nil {
		logrus.Warnf("remove %v refused: %v", w, err)
		return err
	}
	logrus.Infof("removed %v, pool at %d workers", w, h.c.Workers())
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:9100", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveNATSURL, "nats-url", "", "Also answer membership requests on this NATS server")
	serveCmd.Flags().StringVar(&serveSubject, "nats-subject", mutator.DefaultSubjectPrefix, "NATS subject prefix")
	serveCmd.Flags().IntVar(&serveCapacity, "capacity", 0, "Largest pool the manager accepts (0: unbounded)")
	serveCmd.Flags().IntVar(&serveInitial, "initial-workers", 1, "Pool size the manager starts with")
}
