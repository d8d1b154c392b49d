package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"realty/site/internal/api"
	"realty/site/internal/api/handlers"
	"realty/site/internal/cache"
	"realty/site/internal/config"
	"realty/site/internal/db"
	"realty/site/internal/email"
	"realty/site/internal/services"
	"realty/site/internal/storage"
	"realty/site/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'img' (image processing), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	runAPI := cfg.RunMode == "api" || cfg.RunMode == "all"
	runBg := cfg.RunMode == "bg" || cfg.RunMode == "all"
	runImg := cfg.RunMode == "img" || cfg.RunMode == "all"
	if !runAPI && !runBg && !runImg {
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	// MongoDB holds projects, content and templates; inquiries too with the mongo driver.
	var mongoDb *mongo.Database
	if cfg.MongoURI != "" {
		mongoClient, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.DisconnectDB(mongoClient); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}()
		if err := db.EnsureIndexes(ctx, database); err != nil {
			log.Printf("WARNING: %v", err)
		}
		mongoDb = database
	}

	// Redis is needed by the workers; the API degrades to polling without it.
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if runBg || runImg {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Printf("WARNING: Redis unavailable (%v); change feed falls back to polling and no emails are queued.", err)
		redisClient = nil
	} else {
		defer func() {
			if err := cache.DisconnectRedis(redisClient); err != nil {
				log.Printf("Error disconnecting from Redis: %v", err)
			}
		}()
	}

	inquiryStore, closeStore := openInquiryStore(ctx, cfg, mongoDb, redisClient)
	defer closeStore()

	var projectService services.IProjectService
	var contentService services.IContentService
	if mongoDb != nil {
		projectService = services.NewProjectService(mongoDb)
		contentService = services.NewContentService(ctx, mongoDb, cfg, redisClient)
	} else {
		log.Println("MONGO_URI not set: projects and content are disabled.")
	}

	var s3StorageService storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		s3StorageService, err = storage.NewS3Storage(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
	} else if runImg {
		log.Fatalf("AWS_S3_BUCKET is required to run the image worker")
	}
	if runImg && projectService == nil {
		log.Fatalf("MONGO_URI is required to run the image worker")
	}

	var taskClient handlers.IAsynqClient
	if redisClient != nil {
		asynqClient := tasks.NewClient(redisClient)
		defer asynqClient.Close()
		taskClient = asynqClient
	}

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	var mainApiSrv *http.Server
	closeRouter := func() {}
	if runAPI {
		router, closer := api.SetupRouter(cfg, api.Dependencies{
			Inquiries:      inquiryStore,
			ProjectService: projectService,
			ContentService: contentService,
			Storage:        s3StorageService,
			TaskClient:     taskClient,
		})
		closeRouter = closer
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	var taskSrv *asynq.Server
	if runBg || runImg {
		taskProcessor := tasks.NewTaskProcessor(cfg, newEmailSender(cfg, redisClient), s3StorageService, projectService,
			services.NewEmailTemplateService(mongoDb))
		var mux *asynq.ServeMux
		taskSrv, mux = tasks.SetupServer(redisClient, taskProcessor, runImg, runBg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Println("Task server starting...")
			if err := taskSrv.Run(mux); err != nil {
				log.Fatalf("Task server error: %v", err)
			}
			fmt.Println("Task server stopped.")
		}()
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}
	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}
	closeRouter()
	if taskSrv != nil {
		fmt.Println("Shutting down Task server...")
		taskSrv.Shutdown()
	}
	// Stops feed pollers and Pub/Sub listeners.
	cancelBackground()

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}

// openInquiryStore builds the inquiry repository selected by STORE_DRIVER.
func openInquiryStore(ctx context.Context, cfg *config.Config, mongoDb *mongo.Database, redisClient *redis.Client) (services.IInquiryStore, func()) {
	switch cfg.StoreDriver {
	case config.StoreDriverFirestore:
		client, err := services.ConnectFirestore(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Fatalf("Failed to connect to Firestore: %v", err)
		}
		log.Println("Inquiry store: Firestore (native snapshots)")
		return services.NewFirestoreInquiryService(client), func() {
			if err := client.Close(); err != nil {
				log.Printf("Error closing Firestore client: %v", err)
			}
		}
	case config.StoreDriverMemory:
		log.Println("Inquiry store: in-memory")
		return services.NewMemoryInquiryService(), func() {}
	default:
		if redisClient != nil {
			log.Println("Inquiry store: MongoDB with Redis change notifications")
			return services.NewInquiryService(mongoDb, services.NewRedisChangeBus(redisClient), cfg.FeedPollInterval), func() {}
		}
		log.Printf("Inquiry store: MongoDB polling every %s", cfg.FeedPollInterval)
		return services.NewInquiryService(mongoDb, nil, cfg.FeedPollInterval), func() {}
	}
}

// newEmailSender picks the configured provider and, when Redis is available in
// MOCK_SERVICES mode, records mails for the service API instead. LOG_EMAILS adds a file copy.
func newEmailSender(cfg *config.Config, redisClient *redis.Client) email.Sender {
	var primary email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" && redisClient != nil {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primary = email.NewRedisSender(redisClient, cfg)
	} else {
		primary = email.NewSender(cfg)
	}

	composite := email.NewCompositeEmailSender(primary)
	if logEmailsPath := os.Getenv("LOG_EMAILS"); logEmailsPath != "" {
		fileSender, err := email.NewFileEmailSender(logEmailsPath, cfg)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (LOG_EMAILS='%s'): %v", logEmailsPath, err)
		} else {
			composite.AddSender(fileSender)
			log.Println("File email logger added to composite sender.")
		}
	}
	return composite
}
