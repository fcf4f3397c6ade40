package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scenewire/scenewire/metrics"
	"github.com/scenewire/scenewire/server"
	"github.com/scenewire/scenewire/shape"
)

func main() {
	var (
		port       = flag.Uint("port", 33500, "Server port")
		metricAddr = flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
		frameRate  = flag.Duration("frame-rate", 1*time.Second/30, "Frame send interval")
		async      = flag.Bool("async", false, "Activate new connections immediately instead of at the next frame boundary")
	)
	flag.Parse()

	settings := server.NewSettings(uint16(*port))
	settings.Async = *async

	srv := server.NewServer(settings)

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(srv))
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("metrics listening on %s", *metricAddr)
		if err := http.ListenAndServe(*metricAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	listener, err := server.Listen(uint16(*port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	log.Printf("scenewire server listening on :%d", *port)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	go func() {
		if err := srv.Serve(ctx, listener); err != nil {
			log.Printf("serve stopped: %v", err)
		}
	}()

	// The monitor's disconnection poll runs on its own goroutine regardless
	// of sync/async mode, since a lost idle peer is never otherwise detected.
	go srv.MonitorConnections(ctx, 2*time.Second)

	demoFrameLoop(ctx, srv, *frameRate)
	log.Println("server stopped")
}

// demoFrameLoop creates one persistent arrow, re-sends it unchanged as an
// update on a fixed frame cadence, and destroys it on shutdown, committing
// newly connected clients at each boundary — enough traffic to see
// collation and compression exercised without a real rendering client
// attached. It references no resources, so no resource transfer occurs.
func demoFrameLoop(ctx context.Context, srv *server.Server, frameRate time.Duration) {
	arrow := shape.NewArrow(1, 0)
	srv.CreateShape(arrow)

	ticker := time.NewTicker(frameRate)
	defer ticker.Stop()

	var frame uint32
	for {
		select {
		case <-ctx.Done():
			srv.DestroyShape(arrow)
			return
		case <-ticker.C:
			frame++
			srv.UpdateTransfers(8192)
			srv.UpdateShape(arrow)
			srv.UpdateFrame(frameRate.Seconds(), false)
			// Commit newly accepted connections only after this frame's data
			// has already gone out, so a just-attached client's first
			// broadcast is the next full frame rather than a duplicate tail
			// of the frame it connected mid-way through.
			srv.CommitConnections()
			srv.RemoveExpired()
		}
	}
}
