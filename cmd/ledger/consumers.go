package main

import (
	"context"
	"os"
	"strconv"
	"sync"

	kafka "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/external/kafka"
	rabbitmq "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/external/rabbitmq"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	services "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/services"
	"go.uber.org/zap"
)

func workers(env string, def int) int {
	semcount := def
	semenv := os.Getenv(env)
	if semenv != "" {
		v, err := strconv.Atoi(semenv)
		if err == nil {
			semcount = v
		}
	}
	if semcount <= 0 {
		semcount = 1
	}
	return semcount
}

// Покупки из Kafka -> EARN/BURN
func runPurchases(ctx context.Context, logger *zap.Logger, serv *services.LedgerService) error {
	reader, err := kafka.GetNewReader("purchases")
	if err != nil {
		return err
	}
	defer reader.CloseReader()

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	semaphore := make(chan struct{}, workers("LEDGER_PURCHASE_WORKERS", 5))

	for {
		event, err := reader.GetNewMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(event string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			eventId, err := serv.HandlePurchase(ctx, event)
			if err != nil {
				logger.Warn("purchase rejected",
					zap.String("service", "runPurchases"),
					zap.String("event", eventId),
					zap.String("reason", models.Reason(err)),
					zap.Error(err),
				)
			}
		}(event)
	}
}

// Заявки партнеров из RabbitMQ -> DEPOSIT/WITHDRAW с подтверждением
func runFinance(ctx context.Context, logger *zap.Logger, serv *services.LedgerService) error {
	rabbit, err := rabbitmq.NewRabbitConsumer()
	if err != nil {
		return err
	}
	defer rabbit.Close()

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	semaphore := make(chan struct{}, workers("LEDGER_FINANCE_WORKERS", 3))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-rabbit.Msg:
			if !ok {
				return nil
			}
			semaphore <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-semaphore }()
				processFinance(ctx, logger, serv, rabbit, msg, msg.Body)
			}()
		}
	}
}

type delivery interface {
	Ack(multiple bool) error
	Nack(multiple bool, requeue bool) error
}

type financeConfirmer interface {
	Processed(ctx context.Context, requestId string, success bool, reason string) error
}

// Одна заявка: исполнение, подтверждение, ack. После остановки новые заявки
// возвращаются в очередь, начатые доводятся до конца.
func processFinance(ctx context.Context, logger *zap.Logger, serv *services.LedgerService, confirmer financeConfirmer, msg delivery, body []byte) {
	if ctx.Err() != nil {
		msg.Nack(false, true)
		return
	}
	ctx = context.WithoutCancel(ctx)

	requestId, err := serv.HandleFinance(ctx, string(body))
	if requestId == "" {
		// без id подтверждать некому
		logger.Error("finance request dropped", zap.String("service", "runFinance"), zap.Error(err))
		msg.Nack(false, false)
		return
	}
	err = confirmer.Processed(ctx, requestId, err == nil, models.Reason(err))
	if err != nil {
		logger.Error("finance confirm", zap.String("service", "runFinance"), zap.String("request", requestId), zap.Error(err))
	}
	msg.Ack(false)
}
