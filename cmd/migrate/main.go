// Command migrate applies or rolls back the PostgreSQL schema.
//
//	migrate [-dir ./migrations] [-force] up|down|version|to <n>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"ms-ordering/internal/config"
	"ms-ordering/internal/database"
	"ms-ordering/internal/database/migrations"
	"ms-ordering/internal/logger"

	"github.com/joho/godotenv"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] [-force] up|down|version|to <version>")
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dir := flag.String("dir", cfg.Database.MigrationsDir, "migrations directory")
	force := flag.Bool("force", false, "clear a dirty version before migrating up")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	log := logger.New(logger.Options{Terminal: os.Stdout})

	bunDB, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: *dir, ForceDirty: *force}, log)
	defer runner.Close()

	switch flag.Arg(0) {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = runner.Version()
		if err == nil {
			log.Info("MIGRATE", fmt.Sprintf("version %d (dirty: %t)", version, dirty))
		}
	case "to":
		var version uint64
		version, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err != nil {
			err = fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
			break
		}
		err = runner.MigrateTo(uint(version))
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATE", fmt.Sprintf("%s complete", flag.Arg(0)))
}
