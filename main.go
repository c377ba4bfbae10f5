package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xcafe-io/iz"
	"github.com/rs/cors"
	"github.com/subosito/gotenv"
	"golang.org/x/sync/errgroup"

	"budgetbuddy/api"
	"budgetbuddy/internal/budget"
	"budgetbuddy/internal/mail"
	"budgetbuddy/internal/storage"
	"budgetbuddy/logging"
)

var bb budget.BudgetBuddy // Global

var corsConf = cors.New(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-Id"},
	AllowCredentials: true,
})

func openStorage() (budget.Storage, error) {
	switch os.Getenv("STORAGE_DRIVER") {
	case "sqlite":
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "budgetbuddy.db"
		}
		return storage.NewSQLiteStorage(path)
	case "memory":
		return storage.NewInMemoryStorage(), nil
	default:
		db, err := storage.Init()
		if err != nil {
			return nil, err
		}
		return storage.NewMySQLStorage(db), nil
	}
}

func main() {
	gotenv.Load()

	if err := logging.Init("debug"); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return
	}

	logging.Logger.Info("application starting...")

	storageInstance, err := openStorage()
	if err != nil {
		logging.Logger.Errorf("failed to initialize storage: %v", err)
		return
	}

	bb = budget.NewBudgetBuddy(storageInstance, mail.NewFromEnv())
	logging.Logger.Infof("storage driver: %s", bb.StorageType)

	server := http.NewServeMux()
	api := api.NewApi(&bb)

	// AUTH ENDPOINTS.
	server.HandleFunc("POST /api/register", iz.Bind(api.RegisterHandler))                     // Create User + send verification
	server.HandleFunc("POST /api/login", iz.Bind(api.LoginHandler))                           // Login User
	server.HandleFunc("POST /api/email-verification", iz.Bind(api.ResendVerificationHandler)) // Resend verification email
	server.HandleFunc("GET /api/email-verification", iz.Bind(api.VerifyEmailHandler))         // Consume verification token
	server.HandleFunc("GET /api/email-verification/{token}", iz.Bind(api.VerifyEmailHandler))

	// PASSWORD ENDPOINTS.
	server.HandleFunc("GET /api/password", iz.Bind(api.ValidateResetTokenHandler))          // Validate reset token
	server.HandleFunc("POST /api/password/request", iz.Bind(api.RequestPasswordResetHandler)) // Request reset link
	server.HandleFunc("POST /api/password/reset", iz.Bind(api.ResetPasswordHandler))        // Reset via token
	server.HandleFunc("POST /api/password/change", iz.Bind(api.ChangePasswordHandler))      // Change with old password

	// BUDGET ENDPOINTS.
	server.HandleFunc("GET /api/budgets", iz.Bind(api.ListBudgetsHandler))
	server.HandleFunc("GET /api/budgets/{id}", iz.Bind(api.GetBudgetHandler))
	server.HandleFunc("POST /api/budgets", iz.Bind(api.CreateBudgetHandler))
	server.HandleFunc("PATCH /api/budgets/{id}", iz.Bind(api.UpdateBudgetHandler))
	server.HandleFunc("PUT /api/budgets/{id}", iz.Bind(api.UpdateBudgetHandler))
	server.HandleFunc("DELETE /api/budgets/{id}", iz.Bind(api.DeleteBudgetHandler))

	// TRANSACTION ENDPOINTS.
	server.HandleFunc("POST /api/transactions", iz.Bind(api.SaveTransactionHandler))
	server.HandleFunc("GET /api/transactions", iz.Bind(api.ListTransactionsHandler))
	server.HandleFunc("GET /api/transactions/{id}", iz.Bind(api.GetTransactionHandler))
	server.HandleFunc("PUT /api/transactions/{id}", iz.Bind(api.UpdateTransactionHandler))
	server.HandleFunc("DELETE /api/transactions/{id}", iz.Bind(api.DeleteTransactionHandler))

	// SUMMARY + PROFILE ENDPOINTS.
	server.HandleFunc("GET /api/summary", iz.Bind(api.SummaryHandler))
	server.HandleFunc("GET /api/users", iz.Bind(api.GetUserHandler))
	server.HandleFunc("PATCH /api/users", iz.Bind(api.UpdateUserHandler))
	server.HandleFunc("GET /api/health", iz.Bind(api.HealthHandler))

	port := os.Getenv("APP_PORT")
	if port == "" {
		logging.Logger.Info("APP_PORT environment variable not set, using default port 8080")
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: corsConf.Handler(server),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		fmt.Println("Starting server on port: ", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logging.Logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Hourly sweep of expired verification and reset tokens.
	group.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				removed, err := bb.PurgeExpiredTokens(ctx)
				if err != nil {
					logging.Logger.Warnf("token sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					logging.Logger.Infof("token sweep removed %d expired tokens", removed)
				}
			}
		}
	})

	if err := group.Wait(); err != nil {
		logging.Logger.Errorf("server stopped with error: %v", err)
		return
	}
	logging.Logger.Info("server stopped gracefully")
}
