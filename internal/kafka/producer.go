package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

// TicketEvent: сообщение о жизненном цикле тикета.
type TicketEvent struct {
	Event       string    `json:"event"`
	TicketID    uint64    `json:"ticket_id"`
	BuggyID     *uint64   `json:"buggy_id,omitempty"`
	BuggyNumber string    `json:"buggy_number,omitempty"`
	Status      string    `json:"status"`
	ActorRole   string    `json:"actor_role,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	ActorName   string    `json:"actor_name,omitempty"`
	At          time.Time `json:"at"`
}

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, ev TicketEvent)
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer *kafka.Writer
	topic  string
	wg     sync.WaitGroup
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой: методы no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent синхронно пишет событие; ключ — ticket_id (порядок событий одного тикета).
func (p *Producer) ProduceTicketEvent(ctx context.Context, ev TicketEvent) {
	if p.writer == nil {
		return
	}
	msg, err := Message(ev)
	if err != nil {
		slog.Warn("kafka: marshal ticket event", "event", ev.Event, "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("kafka: write ticket event", "event", ev.Event, "ticket_id", ev.TicketID, "error", err)
	}
}

// Publish: fire-and-forget: своя горутина и свой таймаут, ответ API не ждёт.
func (p *Producer) Publish(ev TicketEvent) {
	if p.writer == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		p.ProduceTicketEvent(ctx, ev)
	}()
}

// Close дожидается отправки и закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	p.wg.Wait()
	return p.writer.Close()
}

func Message(ev TicketEvent) (kafka.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.TicketID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Event)},
		},
	}, nil
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
