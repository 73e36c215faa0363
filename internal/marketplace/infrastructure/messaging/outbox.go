// Package messaging 挂单市场领域事件的事务性 outbox 发布
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	"github.com/wyfcoding/yieldmarket/pkg/logger"
	"github.com/wyfcoding/yieldmarket/pkg/mq"
	"gorm.io/gorm"
)

// OutboxMessage 待投递的领域事件，与业务写操作同一事务落库
type OutboxMessage struct {
	gorm.Model
	MessageID   string     `gorm:"column:message_id;type:varchar(64);uniqueIndex;not null"`
	EventType   string     `gorm:"column:event_type;type:varchar(64);index;not null"`
	AggregateID string     `gorm:"column:aggregate_id;type:varchar(64);index;not null"`
	Payload     string     `gorm:"column:payload;type:text;not null"`
	Published   bool       `gorm:"column:published;index;not null"`
	PublishedAt *time.Time `gorm:"column:published_at"`
}

func (OutboxMessage) TableName() string {
	return "marketplace_outbox_messages"
}

// OutboxPublisher 实现 domain.EventPublisher，只在调用方事务内写 outbox 表
type OutboxPublisher struct {
	db *db.DB
}

func NewOutboxPublisher(database *db.DB) *OutboxPublisher {
	return &OutboxPublisher{db: database}
}

func (p *OutboxPublisher) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return p.db.DB.WithContext(ctx)
}

func (p *OutboxPublisher) store(ctx context.Context, eventType, aggregateID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &OutboxMessage{
		MessageID:   uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     string(payload),
	}
	return p.getDB(ctx).Create(msg).Error
}

func (p *OutboxPublisher) PublishListingCreated(ctx context.Context, event domain.ListingCreatedEvent) error {
	return p.store(ctx, "marketplace.listing_created", event.ListingKey, event)
}

func (p *OutboxPublisher) PublishListingFilled(ctx context.Context, event domain.ListingFilledEvent) error {
	return p.store(ctx, "marketplace.listing_filled", event.ListingKey, event)
}

func (p *OutboxPublisher) PublishListingCancelled(ctx context.Context, event domain.ListingCancelledEvent) error {
	return p.store(ctx, "marketplace.listing_cancelled", event.ListingKey, event)
}

// EventEnvelope 发往 Kafka 的统一事件信封
type EventEnvelope struct {
	MessageID   string          `json:"message_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
}

// OutboxRelay 轮询 outbox 表，将未投递事件按落库顺序发往 Kafka
type OutboxRelay struct {
	db       *db.DB
	producer *mq.KafkaProducer
	topic    string
	interval time.Duration
	batch    int
}

func NewOutboxRelay(database *db.DB, producer *mq.KafkaProducer, topic string, interval time.Duration) *OutboxRelay {
	return &OutboxRelay{
		db:       database,
		producer: producer,
		topic:    topic,
		interval: interval,
		batch:    100,
	}
}

// Run 阻塞运行直到 ctx 取消
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				logger.Error(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

func (r *OutboxRelay) relayBatch(ctx context.Context) error {
	var messages []OutboxMessage
	err := r.db.DB.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(r.batch).
		Find(&messages).Error
	if err != nil {
		return err
	}

	for i := range messages {
		msg := &messages[i]
		envelope := EventEnvelope{
			MessageID:   msg.MessageID,
			EventType:   msg.EventType,
			AggregateID: msg.AggregateID,
			Payload:     json.RawMessage(msg.Payload),
		}
		if err := r.producer.SendMessage(ctx, r.topic, msg.AggregateID, envelope); err != nil {
			// 投递失败保留未发布状态，下一轮按原顺序重试
			return err
		}
		now := time.Now()
		err := r.db.DB.WithContext(ctx).Model(msg).
			Updates(map[string]any{"published": true, "published_at": now}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
