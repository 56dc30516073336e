package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
)

// Publisher は予約確定メッセージを Kafka のトピックへ送信する
// イベントIDをキーにして、同じイベントの確定通知を同じパーティションに順序どおり流す
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewConfig は Publisher 用の sarama 設定を返す
func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewPublisher はブローカーに接続した Publisher を作成する
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("Kafkaプロデューサー作成に失敗しました: %w", err)
	}
	return NewPublisherWithProducer(producer, topic), nil
}

// NewPublisherWithProducer は既存の SyncProducer から Publisher を作成する
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// PublishConfirmed は予約確定メッセージを送信する
func (p *Publisher) PublishConfirmed(ctx context.Context, msg *booking.ConfirmedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("メッセージのエンコードに失敗しました: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.EventID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("booking_id"), Value: []byte(msg.BookingID)},
		},
	})
	if err != nil {
		return fmt.Errorf("メッセージ送信に失敗しました: %w", err)
	}

	logger.Debug("予約確定メッセージを送信しました",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("booking_id", msg.BookingID),
	)
	return nil
}

// Close はプロデューサーを閉じる
func (p *Publisher) Close() error {
	return p.producer.Close()
}

var _ booking.Publisher = (*Publisher)(nil)
