package main

import (
	"errors"
	"flag"
	"log"

	"deposit-reconciler/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		command string
		steps   int
		source  string
	)
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, version")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	flag.StringVar(&source, "path", "file://migrations", "Migration source")
	flag.Parse()

	config.Init()

	m, err := migrate.New(source, config.Global.DB.URL())
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("Read version failed: %v", verr)
		}
		log.Printf("Schema version: %d (dirty=%v)", v, dirty)
		return
	default:
		log.Fatalf("Unknown command: %s", command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	log.Printf("Migration %s done", command)
}
