package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"leitura_app_echo/internal/handlers"
	appMiddleware "leitura_app_echo/internal/middleware"
	"leitura_app_echo/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Auth features will not work until valid credentials are provided")
	}

	// Initialize Database
	var db *gorm.DB
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err = services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migration
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis cache; the API works without it, reads just skip the cache
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	} else {
		log.Println("Warning: REDIS_URL not set, entitlement caching disabled")
	}

	// Wire services
	gateway := services.NewMercadoPagoService()
	paymentService := services.NewPaymentService(db, gateway, cache)
	subscriptionService := services.NewSubscriptionService(db, cache, paymentService)
	assistantService := services.NewAssistantService(db)

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, gateway)
	webhookHandler := handlers.NewWebhookHandler(db, paymentService)
	subscriptionHandler := handlers.NewSubscriptionHandler(paymentService, subscriptionService)
	adminHandler := handlers.NewAdminHandler(paymentService, subscriptionService)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	// Public routes
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/webhooks/mercadopago", webhookHandler.MercadoPago)

	// Authenticated routes
	api := e.Group("/api")
	api.Use(appMiddleware.RequireAuth(authClient))
	api.POST("/payments/pix", paymentHandler.CreatePIX)
	api.POST("/payments/status", paymentHandler.CheckStatus)
	api.GET("/subscription", subscriptionHandler.GetSubscription)
	api.POST("/subscription/refresh", subscriptionHandler.Refresh)
	api.POST("/subscription/signout", subscriptionHandler.SignOut)
	api.POST("/access/restore", subscriptionHandler.RestoreAccess)
	api.POST("/assistant", assistantHandler.Ask)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(appMiddleware.RequireAdmin(db))
	admin.POST("/reconcile", adminHandler.Reconcile)
	admin.POST("/activate-paid", adminHandler.BulkActivate)
	admin.GET("/paid-users", adminHandler.ListPaidUsers)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}

func corsOrigins() []string {
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		return []string{origin}
	}
	return []string{"*"}
}
