package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/etsong/catalogbackend/controllers"
	"github.com/etsong/catalogbackend/database"
	"github.com/etsong/catalogbackend/middleware"
	"github.com/etsong/catalogbackend/repository"
	"github.com/etsong/catalogbackend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		products repository.ProductRepository
		users    repository.UserRepository
	)

	if os.Getenv("MONGODB_URI") != "" {
		client, err := database.Connect(ctx)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Println("mongo disconnect:", err)
			}
		}()

		productsCol := database.OpenCollection(client, "products")
		usersCol := database.OpenCollection(client, "users")

		productRepo := repository.NewMongoProductRepository(productsCol)
		if err := productRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal(err)
		}
		userRepo := repository.NewMongoUserRepository(usersCol)
		if err := userRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal(err)
		}

		seeded, err := utils.SeedAdminUser(ctx, usersCol)
		if err != nil {
			log.Fatal(err)
		}
		if seeded {
			log.Println("Admin user seeded")
		}

		products = productRepo
		users = userRepo
	} else {
		log.Println("MONGODB_URI not set, running with the in-memory store (data is not persisted)")
		products = repository.NewMemoryProductRepository()
		users = repository.NewMemoryUserRepository()
	}

	r := setupRouter(products, users)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Println("Listening on :" + port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("server shutdown:", err)
	}
}

func setupRouter(products repository.ProductRepository, users repository.UserRepository) *gin.Engine {
	r := gin.New()

	origins := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := map[string]bool{}
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	r.POST("/auth/register", controllers.Register(users))
	r.POST("/auth/login", controllers.Login(users))

	r.POST("/products", controllers.CreateProduct(products))
	r.GET("/products", controllers.GetProducts(products))
	// The analytics segment must be literal so gin does not route it to :id.
	r.GET("/products/analytics/category-stats", controllers.GetCategoryStats(products))
	r.GET("/products/:id", controllers.GetProduct(products))
	r.GET("/products/:id/avg-rating", controllers.GetAvgRating(products))
	r.POST("/products/:id/reviews", middleware.OptionalAuth(), controllers.AddReview(products, users))
	r.POST("/products/:id/purchase", controllers.Purchase(products))
	r.POST("/products/:id/images", middleware.AuthMiddleware(), controllers.UploadProductImages(products))

	return r
}
