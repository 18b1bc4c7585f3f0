package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/netra-labs/netra/internal/database"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/logging"
)

func main() {
	var (
		path = flag.String("path", "migrations", "path to migration files")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.GetLogger()

	migrator, err := database.NewMigrator(&cfg.Database, *path)
	if err != nil {
		logger.Error("Failed to create migrator", "error", err.Error())
		os.Exit(1)
	}
	defer migrator.Close()

	command := flag.Arg(0)
	switch command {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "steps":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "steps requires a count, e.g. steps -1")
			os.Exit(2)
		}
		var n int
		n, err = strconv.Atoi(flag.Arg(1))
		if err == nil {
			err = migrator.Steps(n)
		}
	case "force":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "force requires a version")
			os.Exit(2)
		}
		var v int
		v, err = strconv.Atoi(flag.Arg(1))
		if err == nil {
			err = migrator.Force(v)
		}
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = migrator.Version()
		if err == nil {
			fmt.Printf("version: %d dirty: %t\n", version, dirty)
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Migration failed", "command", command, "error", err.Error())
		os.Exit(1)
	}

	logger.Info("Migration completed", "command", command, "environment", string(cfg.Environment))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: netra-migrate [-path dir] <up|down|steps N|force V|version>")
}
