// One-shot dispatch runner: connects, processes a single due batch, prints
// the summary, and exits. Useful from cron or by hand when the in-process
// worker and Pub/Sub triggers are both disabled.
//
// Usage:
//
//	go run ./cmd/dispatch-once -limit 50
//	go run ./cmd/dispatch-once -dry-run
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/wasend"
	"bitbucket.org/mmdatafocus/bpo_backend/workflow"
)

func main() {
	limit := flag.Int("limit", 50, "max due messages to process in this run")
	dryRun := flag.Bool("dry-run", false, "list due messages without sending")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database connection failed")
		os.Exit(1)
	}

	store := models.NewDispatchStore(db)

	if *dryRun {
		rows, err := store.FetchDueMessages(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fetch due messages:", err)
			os.Exit(1)
		}
		fmt.Printf("%d due message(s)\n", len(rows))
		for _, row := range rows {
			fmt.Printf("  %s  company=%s  phone=%s  scheduled_at=%s\n",
				row.ID, row.CompanyId, row.Phone, row.ScheduledAt.Format(time.RFC3339))
		}
		return
	}

	sender, err := wasend.NewClient(os.Getenv("WHATSAPP_API_KEY"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "whatsapp client:", err)
		os.Exit(1)
	}
	defer sender.Close()

	d := workflow.NewMessageDispatcher(store, sender, config.GetLogger())
	summary, err := d.ProcessDue(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dispatch batch:", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if summary.Failed > 0 {
		os.Exit(2)
	}
}
