// Command migrate applies (or reports on) the beacon orchestrator's
// Postgres schema, grounded on the teacher's cmd/appserver_ref
// --migrate flag generalized into its own standalone tool so migrations
// can be run independently of starting the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/wopr-systems/beacon-orchestrator/internal/platform/database"
	"github.com/wopr-systems/beacon-orchestrator/internal/platform/migrations"
	"github.com/wopr-systems/beacon-orchestrator/pkg/config"
)

func main() {
	dsnFlag := flag.String("dsn", "", "PostgreSQL DSN (defaults to config/env)")
	status := flag.Bool("status", false, "print the current migration version and exit")
	dryRun := flag.Bool("dry-run", false, "print pending migrations without applying them")
	flag.Parse()

	dsn := strings.TrimSpace(*dsnFlag)
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: load config: %v\n", err)
			os.Exit(1)
		}
		dsn = strings.TrimSpace(cfg.Database.DSN)
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: no DSN configured (pass --dsn or set DATABASE_DSN)")
		os.Exit(1)
	}

	db, err := database.Open(context.Background(), dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch {
	case *status:
		st, err := migrations.CurrentStatus(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: status: %v\n", err)
			os.Exit(1)
		}
		if st.NoneApplied {
			fmt.Println("no migrations applied")
			return
		}
		fmt.Printf("version=%d dirty=%t\n", st.Version, st.Dirty)

	case *dryRun:
		pending, err := migrations.Pending(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: pending: %v\n", err)
			os.Exit(1)
		}
		if len(pending) == 0 {
			fmt.Println("up to date")
			return
		}
		fmt.Println("pending migrations:")
		for _, name := range pending {
			fmt.Println(" -", name)
		}

	default:
		if err := migrations.Apply(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: apply: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	}
}
