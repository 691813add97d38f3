package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/blackmichael/mastodon-bridge/internal/configfile"
	"github.com/blackmichael/mastodon-bridge/internal/domain"
	"github.com/blackmichael/mastodon-bridge/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var from, to string
	flag.StringVar(&from, "from", envOrDefault("BRIDGE_USERS_FILE", "config.yml"), "YAML user directory to import")
	flag.StringVar(&to, "db", os.Getenv("BRIDGE_USERS_DATABASE"), "SQLite database to write")
	flag.Parse()

	if to == "" {
		return fmt.Errorf("--db is required (or set BRIDGE_USERS_DATABASE)")
	}

	ctx := context.Background()
	cfg, err := configfile.NewStore(from).LoadConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := sqlite.NewRepository(to)
	if err != nil {
		return fmt.Errorf("open %s: %w", to, err)
	}
	defer repo.Close()

	return importUsers(ctx, repo, cfg, os.Stdout, to)
}

// importUsers copies every user in cfg into repo in subject order, reporting
// whether each row was new or replaced an existing one.
func importUsers(ctx context.Context, repo *sqlite.Repository, cfg *domain.Config, out io.Writer, dest string) error {
	subjects := make([]string, 0, len(cfg.Users))
	for subject := range cfg.Users {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	var inserted, updated int
	for _, subject := range subjects {
		user := cfg.Users[subject]
		existing, err := repo.GetUser(ctx, subject)
		if err != nil {
			return fmt.Errorf("look up %s: %w", subject, err)
		}
		if err := repo.UpsertUser(ctx, user); err != nil {
			return fmt.Errorf("import %s: %w", subject, err)
		}
		if existing == nil {
			inserted++
			fmt.Fprintf(out, "Inserted %s (%s)\n", subject, user.MastodonHandle)
		} else {
			updated++
			fmt.Fprintf(out, "Updated %s (%s)\n", subject, user.MastodonHandle)
		}
	}
	fmt.Fprintf(out, "%d inserted, %d updated in %s\n", inserted, updated, dest)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
