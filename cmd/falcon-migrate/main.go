package main

import (
	"flag"
	"log"

	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to falcon.yaml (default: search working directory)")
	wikiDB     = flag.String("db", "", "Wiki database path (overrides database_path)")
	repoDB     = flag.String("repo-db", "", "Repo database path (overrides repo_database_path)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("Falcon Database Migration Tool")
	log.Println("==============================")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *wikiDB != "" {
		cfg.DatabasePath = *wikiDB
	}
	if *repoDB != "" {
		cfg.RepoDatabasePath = *repoDB
	}

	// Opening a store applies any pending migrations.
	log.Printf("Wiki database: %s", cfg.DatabasePath)
	wikiStore, err := storage.OpenWikiStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to migrate wiki database: %v", err)
	}
	_ = wikiStore.Close()
	log.Println("✓ Wiki schema up to date")

	log.Printf("Repo database: %s", cfg.RepoDatabasePath)
	repoStore, err := storage.OpenRepoStore(cfg.RepoDatabasePath)
	if err != nil {
		log.Fatalf("Failed to migrate repo database: %v", err)
	}
	_ = repoStore.Close()
	log.Println("✓ Repo schema up to date")

	log.Println("✓ Migrations completed successfully")
}
