package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"

	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/handler"
	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/middleware"
	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/ratelimit"
	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/storage"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/balance"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/config"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/notifications"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/risk"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/security"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/verification"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/worker"
)

// webhookReviewQueue surfaces held transactions to the back office as a
// webhook event, same channel as every other lifecycle event.
type webhookReviewQueue struct {
	events notifications.Queue
}

func (q webhookReviewQueue) Enqueue(ctx context.Context, tx *domain.Transaction, reason string) error {
	return q.events.Enqueue(ctx, "review.required", map[string]interface{}{
		"transaction_id": tx.ID,
		"merchant_id":    tx.MerchantID,
		"amount":         tx.Amount.Amount,
		"currency":       tx.Amount.Currency,
		"risk_score":     tx.RiskScore,
		"reason":         reason,
	})
}

func main() {
	// 1. Load Config
	cfg := config.LoadConfig()

	// 2. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 3. Connect to Database
	dbPool, err := storage.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("❌ Database connection failed", "error", err)
		os.Exit(1)
	}

	// 4. Card vault. The key comes in hex; a bad key is fatal because we
	// must never accept card data we cannot seal.
	vaultKey, err := hex.DecodeString(cfg.CardVaultKey)
	if err != nil {
		slog.Error("❌ CARD_VAULT_KEY is not valid hex", "error", err)
		os.Exit(1)
	}
	vault, err := security.NewCardVault(vaultKey)
	if err != nil {
		slog.Error("❌ Card vault init failed", "error", err)
		os.Exit(1)
	}

	// 5. Optional redis cooldown for SMS resends
	var cooldown verification.Cooldown
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("❌ Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		cooldown = ratelimit.NewCooldown(redis.NewClient(opts), cfg.ResendCooldown)
	}

	// 6. Wire the core
	store := storage.NewPostgres(dbPool)
	merchantRepo := storage.NewMerchantRepository(dbPool)
	events := storage.NewWebhookQueue(dbPool, cfg.WebhookURL)

	verifier := verification.NewEngine(store, events, cooldown, verification.Config{
		SMSResendCap:    cfg.SMSResendCap,
		CodeMismatchCap: cfg.CodeMismatchCap,
	})
	machine := lifecycle.NewMachine(store, risk.Heuristic{}, verifier,
		webhookReviewQueue{events: events}, events,
		lifecycle.Config{HighRiskThreshold: cfg.HighRiskThreshold})
	balances := balance.NewEngine(store, events, balance.Config{
		CryptoFlatFee:   cfg.CryptoFlatFee,
		BankFeeBasisPts: cfg.BankFeeBasisPts,
		SettleAfter:     cfg.SettleAfter,
	})

	// 7. Handlers
	merchantHandler := &handler.MerchantHandler{Repo: merchantRepo}
	paymentHandler := &handler.PaymentHandler{Machine: machine, Vault: vault, Store: store}
	verificationHandler := &handler.VerificationHandler{Machine: machine}
	operatorHandler := &handler.OperatorHandler{Machine: machine, Balance: balances}
	withdrawalHandler := &handler.WithdrawalHandler{Engine: balances, Store: store}
	balanceHandler := &handler.BalanceHandler{Engine: balances, Store: store}

	// 8. Setup Fiber
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/v1")

	// Public (onboarding)
	api.Post("/merchants", merchantHandler.CreateMerchant)
	api.Post("/merchants/:id/keys", merchantHandler.GenerateKey)

	// Merchant surface
	private := api.Use(middleware.Protected(dbPool))
	private.Post("/charges", middleware.Idempotency(dbPool), paymentHandler.ChargeCard)
	private.Post("/bank-wires", middleware.Idempotency(dbPool), paymentHandler.SubmitBankWire)
	private.Get("/transactions", paymentHandler.ListTransactions)
	private.Get("/transactions/:id", paymentHandler.GetTransaction)
	private.Get("/balance", balanceHandler.GetBalance)
	private.Get("/settlements", balanceHandler.ListSettlements)
	private.Post("/withdrawals", middleware.Idempotency(dbPool), withdrawalHandler.CreateWithdrawal)
	private.Get("/withdrawals", withdrawalHandler.ListWithdrawals)

	// Customer-facing verification
	api.Post("/submissions/:id/code", verificationHandler.SubmitCode)
	api.Post("/submissions/:id/resend", verificationHandler.RequestResend)

	// Back office
	ops := api.Group("/operator")
	ops.Post("/submissions/:id/challenge", verificationHandler.IssueChallenge)
	ops.Post("/submissions/:id/decision", verificationHandler.OperatorDecision)
	ops.Post("/transactions/:id/review", operatorHandler.ReviewDecision)
	ops.Post("/transactions/:id/confirm-receipt", operatorHandler.ConfirmReceipt)
	ops.Post("/transactions/:id/refund", operatorHandler.Refund)
	ops.Post("/transactions/:id/fail", operatorHandler.FailTransaction)
	ops.Post("/withdrawals/:id/status", withdrawalHandler.UpdateStatus)

	// 9. Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	worker.StartWebhookWorker(workerCtx, dbPool, cfg.WebhookSecret)
	worker.StartExpirySweeper(workerCtx, store, machine, cfg.InactivityWindow, cfg.SweepInterval)
	worker.StartSettlementWorker(workerCtx, balances, cfg.SettlementInterval)

	// Graceful shutdown: stop accepting traffic, stop workers, then close
	// the pool.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
		}
	}()

	<-stop
	slog.Info("🛑 Shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	stopWorkers()
	dbPool.Close()
	slog.Info("✅ Database connection closed")

	slog.Info("👋 Server exited successfully")
}
