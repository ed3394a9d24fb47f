// Command blob-janitor reclaims orphaned product image blobs. Image uploads
// happen before the database write, so a failed write can leave blobs in the
// bucket that no product references. The janitor diffs the bucket against
// product_images and deletes unreferenced blobs older than a grace period.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storefront-labs/threadline/pkg/storage"
	"github.com/storefront-labs/threadline/pkg/storage/postgres"
)

var (
	schedule    = flag.String("schedule", getEnv("JANITOR_SCHEDULE", "30 3 * * *"), "Cron schedule for orphan sweeps (default: 03:30 UTC)")
	gracePeriod = flag.Duration("grace-period", 24*time.Hour, "Minimum blob age before it is considered orphaned")
	runOnce     = flag.Bool("run-once", false, "Run a single sweep and exit")
	dryRun      = flag.Bool("dry-run", false, "Report orphans without deleting them")
)

func main() {
	flag.Parse()

	cfg := loadStorageConfig()

	store, err := postgres.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	objects, err := postgres.NewS3Client(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	if *runOnce {
		if err := sweep(context.Background(), store.DB(), objects, *gracePeriod, *dryRun); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*schedule, func() {
		if err := sweep(context.Background(), store.DB(), objects, *gracePeriod, *dryRun); err != nil {
			log.Printf("Sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule sweep: %v", err)
	}

	c.Start()
	log.Printf("Blob janitor started, schedule: %s, grace period: %s", *schedule, *gracePeriod)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Janitor stopped")
}

// sweep deletes every blob in the bucket that no product_images row
// references and that is older than the grace period. The grace period keeps
// the janitor from racing an in-flight upload whose database write has not
// landed yet.
func sweep(ctx context.Context, db *sql.DB, objects *postgres.S3Client, grace time.Duration, dryRun bool) error {
	start := time.Now()

	blobs, err := objects.ListImages(ctx)
	if err != nil {
		return err
	}

	referenced, err := referencedStorageIDs(ctx, db)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-grace)
	var deleted, skipped, failed int
	for _, blob := range blobs {
		if referenced[blob.Key] {
			continue
		}
		if blob.LastModified.After(cutoff) {
			skipped++
			continue
		}
		if dryRun {
			log.Printf("Orphan (dry run): %s, last modified %s", blob.Key, blob.LastModified.Format(time.RFC3339))
			deleted++
			continue
		}
		if err := objects.Delete(ctx, blob.Key); err != nil {
			log.Printf("Failed to delete orphan %s: %v", blob.Key, err)
			failed++
			continue
		}
		deleted++
	}

	log.Printf("Sweep complete in %s: %d blobs scanned, %d orphans removed, %d within grace period, %d failures",
		time.Since(start).Round(time.Millisecond), len(blobs), deleted, skipped, failed)
	return nil
}

func referencedStorageIDs(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT storage_id FROM product_images")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.PostgresURL = getEnv("THREADLINE_POSTGRES_URL", "postgres://localhost/threadline?sslmode=disable")
	cfg.S3Endpoint = getEnv("THREADLINE_S3_ENDPOINT", "")
	cfg.S3Region = getEnv("THREADLINE_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("THREADLINE_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("THREADLINE_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("THREADLINE_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnv("THREADLINE_S3_USE_PATH_STYLE", "") == "true"
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
