// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"sme-plug-go/internal/config"
	"sme-plug-go/internal/model"
	"sme-plug-go/pkg/events"
	"sme-plug-go/pkg/log"
)

// messageWriter 是 kafka.Writer 的最小子集，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 将审计事件发布到 Kafka。
type Publisher struct {
	writer messageWriter
}

func brokerList(brokers string) []string {
	list := make([]string, 0)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}

// NewPublisher 初始化 Kafka 生产者。Brokers 为空时返回 nil，调用方应跳过事件发布。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	brokers := brokerList(cfg.Brokers)
	if len(brokers) == 0 {
		log.Warnf("Kafka brokers 未配置，审计事件不会发布")
		return nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Publisher{writer: w}
}

// PublishAudit 以 queryId 为 key 发送审计事件，同一查询的事件落在同一分区。
func (p *Publisher) PublishAudit(ctx context.Context, entry *model.AuditEntry) error {
	data, err := json.Marshal(events.NewAuditEvent(entry))
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(entry.QueryID), Value: data}); err != nil {
		return fmt.Errorf("发布审计事件失败: %w", err)
	}
	return nil
}

// Close 关闭生产者。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// StartConsumer 消费审计事件直到 ctx 结束。fromStart 为 false 时从最新位置开始。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, fromStart bool, handle func(events.AuditEvent) error) error {
	brokers := brokerList(cfg.Brokers)
	if len(brokers) == 0 {
		return errors.New("kafka brokers 未配置")
	}
	rc := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	}
	if fromStart {
		rc.StartOffset = kafka.FirstOffset
	} else {
		rc.StartOffset = kafka.LastOffset
	}
	r := kafka.NewReader(rc)
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		var ev events.AuditEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, offset: %d", err, m.Offset)
		} else if err := handle(ev); err != nil {
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
