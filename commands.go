package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/progress"
	"github.com/banshee-data/motion.report/internal/segment"
	"github.com/google/uuid"
)

// runCommand dispatches CLI subcommands that run without the HTTP server.
func runCommand(args []string, dbPath string, gapMinutes, targetHz float64) {
	switch args[0] {
	case "migrate":
		db.RunMigrateCommand(args[1:], dbPath)

	case "process":
		runProcessCommand(args[1:], dbPath, gapMinutes, targetHz)

	case "help":
		printCommandHelp()

	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printCommandHelp()
		os.Exit(1)
	}
}

// runProcessCommand batch-processes a project's unprocessed session
// directories without the HTTP layer, mirroring the upload path.
func runProcessCommand(args []string, dbPath string, gapMinutes, targetHz float64) {
	if len(args) < 1 {
		log.Fatal("Usage: motion-report process <project_id>")
	}
	projectID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || projectID < 1 {
		log.Fatalf("Invalid project ID: %s", args[0])
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	store := progress.NewStore()
	proc := segment.NewProcessor(database, fsutil.OSFileSystem{}, store)
	proc.GapThreshold = time.Duration(gapMinutes * float64(time.Minute))
	proc.TargetHz = targetHz

	token := uuid.NewString()
	proc.ProcessProject(context.Background(), projectID, token)

	ev, ok := store.Get(token)
	if !ok {
		log.Fatal("Processing finished without a final state")
	}
	switch ev.Status {
	case progress.StatusComplete:
		log.Printf("✓ Processed %d session dirs: %d created, %d skipped",
			ev.TotalSessions, len(ev.SessionsCreated), len(ev.SkippedSessions))
		for _, name := range ev.SkippedSessions {
			log.Printf("  skipped: %s", name)
		}
	case progress.StatusError:
		log.Fatalf("Processing failed: %s", ev.Message)
	}
}

func printCommandHelp() {
	fmt.Println("motion-report: session segmentation service")
	fmt.Println()
	fmt.Println("Usage: motion-report [flags] [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)               Start the HTTP server")
	fmt.Println("  process <project>    Process a project's raw session directories")
	fmt.Println("  migrate <action>     Database migrations (see 'migrate help')")
	fmt.Println("  help                 Show this help message")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -listen <addr>       Listen address (default :8080)")
	fmt.Println("  -db <path>           SQLite database path (default sessions.db)")
	fmt.Println("  -gap-minutes <m>     Auto-split gap threshold (default 30)")
	fmt.Println("  -target-hz <hz>      Resampling target rate (default 50)")
	fmt.Println("  -dev                 Run in dev mode")
}
