package coloyalty

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
)

type KafkaPurchase struct {
	reader *kafka.Reader
}

func GetNewReader(topic string) (reader *KafkaPurchase, err error) {
	// config
	kafkaurl := os.Getenv("KAFKA_PURCHASE_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASE_URL is not set")
	}
	kafkaport := os.Getenv("KAFKA_PURCHASE_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASE_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "ledger_purchases",
	}
	return &KafkaPurchase{kafka.NewReader(kafkaconfig)}, nil
}

func (k *KafkaPurchase) GetNewMessage(ctx context.Context) (eventJson string, err error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Value), nil
}

func (k *KafkaPurchase) CloseReader() {
	k.reader.Close()
}
