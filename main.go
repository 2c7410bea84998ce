package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Banyel3/iayos-sub003/pkg/kyc"
	"github.com/Banyel3/iayos-sub003/pkg/notify"
	"github.com/Banyel3/iayos-sub003/pkg/pipeline"
	"github.com/Banyel3/iayos-sub003/pkg/storage"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

// Shared service singletons, wired in main and read by the handlers.
var (
	fileStore *storage.LocalStore
	policies  *kyc.PolicySource
	prewarmer *kyc.Prewarmer
	orch      *pipeline.Orchestrator
	notifier  *notify.Notifier
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	// Support a lightweight migrate command: `./kyc_app migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()

	fileStore = storage.NewLocalStoreFromEnv()
	if err := fileStore.EnsureBuckets(); err != nil {
		fmt.Fprintln(os.Stderr, "bucket setup failed:", err)
		os.Exit(1)
	}

	// Face model loads in the background; the first submission blocks on it
	// instead of the whole process.
	prewarmer = kyc.NewPrewarmer(cascadePath())

	policies = kyc.NewPolicySource()
	if path := os.Getenv("KYC_POLICY_FILE"); path != "" {
		if err := policies.Watch(path); err != nil {
			fmt.Fprintln(os.Stderr, "policy watch failed:", err)
		}
	}

	pol := policies.Snapshot()
	remote := kyc.NewRemoteFaceClient(pol.RemoteFaceAPIURL, pol.FaceTimeout)
	notifier = notify.NewNotifier(db, notify.NewRedisCacheFromEnv())
	orch = pipeline.New(pipeline.NewGormRepo(db), fileStore, kyc.NewOCREngine(), prewarmer, remote, policies, notifier)

	go orch.SweepLoop(context.Background(), sweepInterval())

	r := gin.Default()

	setupRoutes(r)

	r.Run(":8081")
}

// cascadePath locates the pigo facefinder model (env KYC_FACE_CASCADE).
func cascadePath() string {
	if v := os.Getenv("KYC_FACE_CASCADE"); v != "" {
		return v
	}
	return "models_data/facefinder"
}

func sweepInterval() time.Duration {
	if v := os.Getenv("KYC_SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Minute
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
