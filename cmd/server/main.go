package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/prospect-crm/internal/api"
	"github.com/ignite/prospect-crm/internal/auth"
	"github.com/ignite/prospect-crm/internal/config"
	"github.com/ignite/prospect-crm/internal/notify"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
	"github.com/ignite/prospect-crm/internal/repository/postgres"
	"github.com/ignite/prospect-crm/internal/service/prospect"
	"github.com/ignite/prospect-crm/internal/storage"
	"github.com/ignite/prospect-crm/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// jobJournal records commits and serves them back on the job route.
type jobJournal interface {
	worker.JobJournal
	api.JobReader
}

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(url string) (*redis.Client, error) {
	var client *redis.Client
	opts, err := redis.ParseURL(url)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func main() {
	log.Println("Prospect CRM import server starting")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL (%s): %v", extractHost(cfg.Database.URL), err)
	}
	defer db.Close()
	log.Printf("Connected to PostgreSQL at %s", extractHost(cfg.Database.URL))

	// Import sessions live in Redis; there is no fallback store.
	redisClient, err := openRedis(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis (%s): %v", cfg.Redis.URL, err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prospects := prospect.NewService(
		postgres.NewProspectRepo(db),
		prospect.WithInsertTimeout(cfg.Import.InsertTimeout()),
	)
	sessions := worker.NewSessionStore(redisClient, cfg.Import.SessionTTL())

	var journal jobJournal = postgres.NewImportJobRepo(db)
	if cfg.Journal.Backend == "dynamodb" {
		dynamo, err := storage.NewDynamoClient(ctx, cfg.Journal.Region)
		if err != nil {
			log.Fatalf("Failed to create DynamoDB client: %v", err)
		}
		journal = storage.NewJobLedger(dynamo, cfg.Journal.Table, cfg.Journal.Retention())
		log.Printf("Import jobs journaled in DynamoDB table %s", cfg.Journal.Table)
	}
	runnerOpts := []worker.RunnerOption{worker.WithJournal(journal)}
	if cfg.Notify.Enabled {
		sesClient, err := notify.NewSESClient(ctx, cfg.Notify.Region, cfg.Notify.AccessKey, cfg.Notify.SecretKey)
		if err != nil {
			log.Fatalf("Failed to create SES client: %v", err)
		}
		notifier, err := notify.NewNotifier(sesClient, cfg.Notify.FromEmail)
		if err != nil {
			log.Fatalf("Failed to create import notifier: %v", err)
		}
		runnerOpts = append(runnerOpts, worker.WithNotifier(notifier))
		log.Printf("Import reports enabled (from %s)", cfg.Notify.FromEmail)
	}
	runner := worker.NewImportRunner(sessions, prospects, cfg.Import.LockTTL(), runnerOpts...)

	var (
		archive  api.Archiver
		s3Client api.BucketHeader
	)
	if cfg.Archive.Enabled {
		client, err := storage.NewS3Client(ctx, cfg.Archive.Region)
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		s3Client = client
		archive = storage.NewArchive(client, storage.ArchiveConfig{
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Compress: cfg.Archive.Compress,
		})
		log.Printf("Upload archive enabled (s3://%s/%s)", cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	baseURL := cfg.Auth.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}
	authManager := auth.NewAuthManager(&cfg.Auth, baseURL)
	var routesAuth *auth.AuthManager
	if authManager.Enabled() {
		if cfg.Auth.GoogleClientID == "" {
			log.Fatal("auth is enabled but GOOGLE_CLIENT_ID is empty")
		}
		routesAuth = authManager
		go authManager.CleanupExpiredSessions(ctx, 15*time.Minute)
		log.Printf("Google OAuth enabled for domain: %s (callback: %s/auth/callback)", cfg.Auth.AllowedDomain, baseURL)
	} else {
		log.Println("WARNING: auth disabled, the importing user is read from X-User-* headers")
	}

	imports := api.NewImportHandlers(sessions, runner, authManager, api.ImportOptions{
		Archive:      archive,
		Jobs:         journal,
		PreviewLimit: cfg.Import.PreviewLimit,
		MaxUpload:    cfg.Import.MaxUploadBytes(),
	})
	health := api.NewHealthChecker(db, redisClient, s3Client, cfg.Archive.Bucket)
	router := api.SetupRoutes(imports, health, routesAuth, cfg.Server.AllowedOrigins)
	server := api.NewServer(cfg.Server, router)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	// a commit still running after this is cut and left partial
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
