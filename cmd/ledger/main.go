// Реестр Co-Loyalty: HTTP и gRPC API, обработка покупок (Kafka) и заявок партнеров (RabbitMQ)
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/api"
	grpcapi "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/api/grpc"
	db "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/db"
	advisor "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/external/advisor"
	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	services "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/services"
	logging "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/observability/logging"
	tracing "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/observability/otel"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	// log
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("LEDGER_PORT")
	if port == "" {
		panic("env LEDGER_PORT is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing
	shutdownTracer, err := tracing.InitTracer(ctx, logger)
	if err != nil {
		panic(err)
	}
	defer shutdownTracer(context.Background())

	// state
	seed, err := db.LoadSeed(os.Getenv("LEDGER_SEED_FILE"))
	if err != nil {
		panic(err)
	}
	store, err := db.NewLedgerDB(seed)
	if err != nil {
		panic(err)
	}

	journal := openJournal(ctx, logger)
	cache := openCache(logger)
	reports := openReports(logger)
	adv := openAdvisor(logger)

	// services
	ledger := services.NewLedgerService(logger, store, journal, cache)
	treasury := services.NewTreasuryService(logger, store)
	advisorService := services.NewAdvisorService(logger, adv, reports, store)

	// api handlers
	r := api.NewHandler(logger, ledger, treasury, advisorService, os.Getenv("LEDGER_JWT_SECRET"), api.NewAdvisorLimiter())
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(r, "ledger"),
		Addr:         ":" + port,
		WriteTimeout: 45 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server", zap.String("port", port))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(timeout)
	})

	// gRPC
	grpcPort := os.Getenv("LEDGER_GRPC_PORT")
	if grpcPort != "" {
		lis, err := net.Listen("tcp", "0.0.0.0:"+grpcPort)
		if err != nil {
			panic(err)
		}
		grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		grpcapi.RegisterLedgerServer(grpcServer, grpcapi.NewLedgerService(logger, ledger, treasury))
		g.Go(func() error {
			logger.Info("grpc server", zap.String("port", grpcPort))
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	// consumers
	if os.Getenv("KAFKA_PURCHASE_URL") != "" {
		g.Go(func() error {
			return runPurchases(gctx, logger, ledger)
		})
	}
	if os.Getenv("RABBIT_URL") != "" {
		g.Go(func() error {
			return runFinance(gctx, logger, ledger)
		})
	}

	err = g.Wait()
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if closer, ok := journal.(*db.JournalDB); ok {
		closer.Close()
	}
	if closer, ok := cache.(*db.CacheService); ok {
		closer.Close()
	}
	if closer, ok := reports.(*db.ReportsDB); ok {
		closer.Close(context.Background())
	}
}

// Необязательные зависимости: при ошибке сервис работает без них

func openJournal(ctx context.Context, logger *zap.Logger) interf.TransactionJournal {
	if os.Getenv("LEDGER_DB") == "" {
		return nil
	}
	journal, err := db.NewJournalDB(logger)
	if err != nil {
		logger.Error("journal disabled", zap.Error(err))
		return nil
	}
	err = journal.EnsureSchema(ctx)
	if err != nil {
		logger.Error("journal disabled", zap.Error(err))
		journal.Close()
		return nil
	}
	return journal
}

func openCache(logger *zap.Logger) interf.BalanceCache {
	if os.Getenv("LEDGER_CACHE_URL") == "" {
		return nil
	}
	cache, err := db.NewCacheService()
	if err != nil {
		logger.Error("cache disabled", zap.Error(err))
		return nil
	}
	return cache
}

func openReports(logger *zap.Logger) interf.ReportStorage {
	if os.Getenv("LEDGER_MONGO") == "" {
		return nil
	}
	reports, err := db.NewReportsDB()
	if err != nil {
		logger.Error("reports storage disabled", zap.Error(err))
		return nil
	}
	return reports
}

func openAdvisor(logger *zap.Logger) interf.Advisor {
	client, err := advisor.NewGeminiClient()
	if err != nil {
		logger.Info("advisor disabled", zap.Error(err))
		return nil
	}
	return client
}
