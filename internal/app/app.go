// Package app はアプリケーションの初期化、依存関係のワイヤリング、起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/neuroscan/internal/admin"
	"github.com/hitoshi/neuroscan/internal/auth"
	"github.com/hitoshi/neuroscan/internal/classifier"
	"github.com/hitoshi/neuroscan/internal/config"
	"github.com/hitoshi/neuroscan/internal/database"
	"github.com/hitoshi/neuroscan/internal/doctor"
	"github.com/hitoshi/neuroscan/internal/handler"
	"github.com/hitoshi/neuroscan/internal/logger"
	"github.com/hitoshi/neuroscan/internal/mailer"
	"github.com/hitoshi/neuroscan/internal/metrics"
	"github.com/hitoshi/neuroscan/internal/middleware"
	"github.com/hitoshi/neuroscan/internal/predict"
	"github.com/hitoshi/neuroscan/internal/repository"
	"github.com/hitoshi/neuroscan/internal/security"
	"github.com/hitoshi/neuroscan/internal/token"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database", cfg.DatabaseName),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// MongoDB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	db := client.Database(cfg.DatabaseName)
	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewMongoUserRepo(db)
	pendingRepo := repository.NewMongoPendingUserRepo(db)
	sessionRepo := repository.NewMongoSessionRepo(db)
	reportRepo := repository.NewMongoReportRepo(db)
	appointmentRepo := repository.NewMongoAppointmentRepo(db)
	configRepo := repository.NewMongoSystemConfigRepo(db)

	// 3. セキュリティ・コラボレータの初期化
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	sanitizer := security.NewSanitizer()
	tokens := token.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	mail := mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom)
	classify := classifier.NewExecClassifier(cfg.ClassifierCommand, cfg.ClassifierScript, cfg.ClassifierTimeout)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(
		userRepo, pendingRepo, sessionRepo,
		hasher, sanitizer, tokens, mail,
		auth.ServiceConfig{OTPTTL: cfg.OTPTTL},
	)
	adminService := admin.NewService(
		userRepo, sessionRepo, reportRepo, appointmentRepo, configRepo,
		hasher, mail,
	)
	doctorService := doctor.NewService(
		userRepo, reportRepo, appointmentRepo, sanitizer, mail,
	)
	predictService := predict.NewService(
		userRepo, reportRepo, adminService, classify, mail,
	)

	// 5. 分類トグルの初期値を投入（既存設定は上書きしない）
	if err := adminService.SeedClassificationConfig(ctx); err != nil {
		slog.Warn("failed to seed classification config", slog.String("error", err.Error()))
	}

	// 6. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionValidator:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService:    authService,
		AdminService:   adminService,
		DoctorService:  doctorService,
		PredictService: predictService,
		Appointments:   doctorService,

		Metrics:        collector,
		MetricsHandler: metrics.SetupMetricsRoute(registry),

		MaxImageBytes: cfg.MaxImageBytes,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // 分類実行がレスポンスを待たせるため長めにとる
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// rateLimiterConfig は設定値からレート制限設定を組み立てる。
// ウィンドウ幅（サインアップ・検証は1時間、ログインは10分、一般は1分）は固定で、
// 回数のみ環境変数で調整できる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.SignupRate = rate.Limit(float64(cfg.SignupLimitPerHour) / 3600.0)
	rlCfg.SignupBurst = cfg.SignupLimitPerHour
	rlCfg.VerifyRate = rate.Limit(float64(cfg.VerifyLimitPerHour) / 3600.0)
	rlCfg.VerifyBurst = cfg.VerifyLimitPerHour
	rlCfg.LoginRate = rate.Limit(float64(cfg.LoginLimitPer10Min) / 600.0)
	rlCfg.LoginBurst = cfg.LoginLimitPer10Min
	rlCfg.GeneralRate = rate.Limit(float64(cfg.GeneralLimitPerMinute) / 60.0)
	rlCfg.GeneralBurst = cfg.GeneralLimitPerMinute
	return rlCfg
}

// runMigrate はデータベースマイグレーションを実行する。
// インデックス作成コマンドを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database", cfg.DatabaseName),
	)

	if err := database.RunMigrations(database.MigrateURI(cfg.MongoURI, cfg.DatabaseName)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runCreateAdmin は環境変数ADMIN_EMAIL / ADMIN_NAME / ADMIN_PASSWORDから
// 検証済みの管理者アカウントを作成する。同じメールアドレスの管理者が既に
// 存在する場合はパスワードを再設定する。
func runCreateAdmin(cfg *config.Config) error {
	email := os.Getenv("ADMIN_EMAIL")
	name := os.Getenv("ADMIN_NAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || name == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL, ADMIN_NAME and ADMIN_PASSWORD must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	db := client.Database(cfg.DatabaseName)
	adminService := admin.NewService(
		repository.NewMongoUserRepo(db),
		repository.NewMongoSessionRepo(db),
		repository.NewMongoReportRepo(db),
		repository.NewMongoAppointmentRepo(db),
		repository.NewMongoSystemConfigRepo(db),
		security.NewPasswordHasher(cfg.BcryptCost),
		mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom),
	)

	created, err := adminService.CreateAdmin(ctx, admin.CreateAdminInput{
		Email:    email,
		Name:     name,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin account ready",
		slog.String("user_id", created.ID),
		slog.String("email", created.Email),
	)
	return nil
}
