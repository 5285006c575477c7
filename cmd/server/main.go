package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Daneel-Li/petshop-back/internal/config"
	"github.com/Daneel-Li/petshop-back/internal/dao"
	"github.com/Daneel-Li/petshop-back/internal/handlers"
	"github.com/Daneel-Li/petshop-back/internal/services"
	"github.com/Daneel-Li/petshop-back/pkg/db"
	"github.com/Daneel-Li/petshop-back/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	sqlitePath string
)

func setupLogging(logLevel string) {
	switch strings.ToLower(logLevel) {
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "info":
		slog.SetLogLoggerLevel(slog.LevelInfo)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	}
}

// openDatabase 默认 MySQL；--sqlite 仅供本地开发
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if sqlitePath != "" {
		slog.Warn("using sqlite database, not for production", "path", sqlitePath)
		return db.OpenSqlite(sqlitePath)
	}
	return db.OpenMysql(db.MysqlConfig(cfg.Mysql), db.DefaultPool)
}

func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Loglevel)
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:          "petshop",
		Short:        "Pet shop checkout and ECPay payment backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "config file (json), env vars override")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use sqlite file instead of mysql (development only)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newCheckMacCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP(S) server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "run schema migration before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			gdb, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			if err := dao.Migrate(gdb); err != nil {
				return err
			}
			slog.Info("migration finished")
			return nil
		},
	}
}

// newCheckMacCmd 对照绿界回调排查验签问题，参数格式 Key=Value
func newCheckMacCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkmac Key=Value...",
		Short: "Compute (or verify, when CheckMacValue is given) an ECPay CheckMacValue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			signer, err := services.NewMacSigner(cfg.ECPay)
			if err != nil {
				return err
			}
			fields := make(map[string]string, len(args))
			for _, a := range args {
				k, v, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("bad argument %q, want Key=Value", a)
				}
				fields[k] = v
			}
			mac, err := signer.Compute(fields)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, mac)
			if given, ok := fields[services.CheckMacField]; ok {
				if !signer.Verify(fields, given) {
					return errors.New("CheckMacValue mismatch")
				}
				fmt.Fprintln(out, "OK")
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	gdb, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	if autoMigrate {
		if err := dao.Migrate(gdb); err != nil {
			return err
		}
	}
	repo := dao.NewGormRepository(gdb)

	proxies, err := utils.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	signer, err := services.NewMacSigner(cfg.ECPay)
	if err != nil {
		return err
	}
	gateway := services.NewECPayGateway(signer, cfg.ECPay)
	jwtSvc := services.NewJWTService(cfg.JwtIssuer, []byte(cfg.JwtSecret))

	// 状态推送：websocket 必开，mqtt 视配置
	wsManager := services.NewWsManager(ctx, jwtSvc, time.Minute*10)
	sinks := []services.EventSink{wsManager}
	if cfg.Mqtt.Broker != "" {
		publisher := services.NewMqttPublisher(cfg.Mqtt)
		if err := publisher.Start(); err != nil {
			slog.Error("mqtt publisher disabled", "error", err)
		} else {
			defer publisher.Stop()
			sinks = append(sinks, publisher)
		}
	}
	notifier := services.NewAsyncNotifier(64, sinks...)

	deps := handlers.RouterDeps{
		Shop: handlers.NewShopHandler(
			services.NewOrderService(repo, gateway, notifier),
			services.NewDonationService(repo, gateway, notifier),
			wsManager,
		),
		Payment: handlers.NewPaymentHandler(services.NewCallbackService(repo, signer, cfg.ECPay.IsProduction(), notifier)),
		JWT:     jwtSvc,
		Proxies: proxies,
	}
	if cfg.RateLimitQPS > 0 {
		deps.Limiter = handlers.NewIPRateLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst, proxies)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, callback limit degrades to pass-through", "addr", cfg.Redis.Addr, "error", err)
		}
		deps.Redis = rdb
	}

	return startServer(ctx, handlers.NewRouter(deps), cfg)
}

// startServer 启动HTTP服务器，收到信号后优雅退出
func startServer(ctx context.Context, h http.Handler, cfg *config.Config) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", cfg.ServerPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Tls.CertPath != "" && cfg.Tls.KeyPath != "" {
			slog.Info("Starting HTTPS server: " + server.Addr + "...")
			errCh <- server.ListenAndServeTLS(cfg.Tls.CertPath, cfg.Tls.KeyPath)
		} else {
			slog.Info("Starting HTTP server: " + server.Addr + "...")
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server: " + err.Error())
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
