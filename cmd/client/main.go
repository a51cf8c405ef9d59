package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"dmsync/internal/adapter/api"
	"dmsync/internal/adapter/api/handler"
	"dmsync/internal/adapter/api/router"
	"dmsync/internal/adapter/api/ws"
	"dmsync/internal/adapter/repository"
	domainrepo "dmsync/internal/domain/repository"
	"dmsync/internal/infrastructure/cache"
	"dmsync/internal/infrastructure/cache/adapter"
	"dmsync/internal/infrastructure/cache/port"
	"dmsync/internal/infrastructure/realtime"
	"dmsync/internal/usecase"
	"dmsync/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.UserID == "" {
		log.Fatalf("DMSYNC_USER_ID must be set: the engine syncs one user's conversations")
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Try to get service account from environment variable (for production)
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		// Fallback to file path (for local development)
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}

		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}

		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	firestoreClient, err := firebaseApp.Firestore(ctx)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	// Redis backs both the cache and the typing/presence broadcast. Without it
	// the engine runs cacheless on the in-memory adapter and skips broadcast.
	var kv port.KV
	var broadcaster *realtime.RedisBroadcaster
	if cfg.RedisURL != "" {
		redisKV, err := adapter.NewRedisKV(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisKV.Close()
		kv = redisKV
		broadcaster = realtime.NewRedisBroadcaster(redisKV.Client())
	} else {
		log.Printf("REDIS_URL not set, running with in-memory cache and no typing broadcast")
		kv = adapter.NewMemoryKV()
	}
	cacheStore := cache.NewStoreWithMaxAges(kv, cfg.MessageCacheMaxAge, cfg.ListCacheMaxAge)

	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)
	identityRepo := repository.NewFirestoreIdentityRepository(firestoreClient)
	profileRepo := repository.NewFirestoreProfileRepository(firestoreClient)

	directory := usecase.NewConversationDirectory(
		cfg.UserID,
		conversationRepo,
		messageRepo,
		identityRepo,
		profileRepo,
		broadcasterOrNil(broadcaster),
		cacheStore,
		cfg.RemoteOpTimeout,
		cfg.SelectionLockWindow,
	)
	defer directory.Close()

	hub := ws.NewHub()
	hub.Start(ctx)

	// Every state change is pushed to connected UI hosts as a full snapshot.
	directory.SetOnChange(func() {
		state := map[string]interface{}{
			"directory": directory.Snapshot(),
		}
		if synchronizer := directory.Messages(); synchronizer != nil {
			state["messages"] = synchronizer.Snapshot()
		}
		payload, err := json.Marshal(state)
		if err != nil {
			log.Printf("Failed to encode state snapshot: %v", err)
			return
		}
		hub.Broadcast(payload)
	})

	directory.Initialize(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	conversationHandler := handler.NewConversationHandler(directory)
	messageHandler := handler.NewMessageHandler(directory)
	wsHandler := handler.NewWebSocketHandler(hub)
	healthHandler := handler.NewHealthHandler(directory)

	router.Setup(e, conversationHandler, messageHandler, wsHandler, healthHandler)

	log.Printf("Starting sync engine for user %s on port %s...", cfg.UserID, cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}

// broadcasterOrNil keeps a nil *RedisBroadcaster from becoming a non-nil
// interface value downstream.
func broadcasterOrNil(b *realtime.RedisBroadcaster) domainrepo.Broadcaster {
	if b == nil {
		return nil
	}
	return b
}
