package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/progress"
	"github.com/banshee-data/motion.report/internal/segment"
	"github.com/banshee-data/motion.report/internal/timeseries"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "sessions.db", "Path to the SQLite database")
	gapMinutes = flag.Float64("gap-minutes", 30, "Gap threshold for auto splitting, in minutes")
	targetHz   = flag.Float64("target-hz", timeseries.DefaultTargetHz, "Target sample rate for resampling")
)

func main() {
	flag.Parse()

	// Subcommands run without the HTTP server.
	if args := flag.Args(); len(args) > 0 {
		runCommand(args, *dbPath, *gapMinutes, *targetHz)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	proc := segment.NewProcessor(database, fsutil.OSFileSystem{}, progress.NewStore())
	proc.GapThreshold = time.Duration(*gapMinutes * float64(time.Minute))
	proc.TargetHz = *targetHz

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)

		server := api.NewServer(database, proc)
		mux.Handle("/api/", server.ServeMux())

		h := api.LoggingMiddleware(mux)
		if *devMode {
			log.Printf("dev mode: serving on %s", *listen)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
