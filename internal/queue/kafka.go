package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-collector/internal/weather"
)

var _ weather.Publisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes records to a Kafka topic. The topic plays the
// role of the durable queue: it is created on first use and every write
// waits for all in-sync replicas.
type KafkaPublisher struct {
	brokers     []string
	topic       string
	opts        options
	newWriter   func() messageWriter
	ensureTopic func(ctx context.Context) error
}

// NewKafkaPublisher returns a Kafka publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...Option) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, ErrEmptyQueue
	}
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &KafkaPublisher{
		brokers: brokers,
		topic:   topic,
		opts:    o,
	}
	p.newWriter = p.defaultWriter
	p.ensureTopic = p.createTopic
	return p, nil
}

// Publish sends rec, retrying per the configured policy.
func (p *KafkaPublisher) Publish(ctx context.Context, rec weather.WeatherRecord) error {
	body, err := encode(p.topic, rec)
	if err != nil {
		return err
	}
	return publishWithRetry(ctx, "kafka", p.topic, p.opts, func(ctx context.Context) error {
		return p.publishOnce(ctx, rec.Location, body)
	})
}

// CheckReady reaches the controller and makes sure the topic exists.
func (p *KafkaPublisher) CheckReady(ctx context.Context) error {
	return p.ensureTopic(ctx)
}

func (p *KafkaPublisher) publishOnce(ctx context.Context, key string, body []byte) error {
	if err := p.ensureTopic(ctx); err != nil {
		return err
	}

	w := p.newWriter()
	defer func() {
		if err := w.Close(); err != nil {
			p.opts.logger.Debug("closing kafka writer", "err", err)
		}
	}()

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(contentType)},
			{Key: "message-id", Value: []byte(uuid.NewString())},
			{Key: "app-id", Value: []byte(appID)},
		},
	})
}

func (p *KafkaPublisher) defaultWriter() messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        p.topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		BatchSize:    1,
		WriteTimeout: p.opts.dialTimeout,
	}
}

// createTopic declares the topic through the cluster controller. An existing
// topic is not an error.
func (p *KafkaPublisher) createTopic(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.dialTimeout)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", p.brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("fetch controller metadata: %w", err)
	}
	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))

	admin, err := kafka.DialContext(dialCtx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer admin.Close()

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             p.topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !isTopicExists(err) {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	return nil
}

func isTopicExists(err error) bool {
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return true
	}
	return strings.Contains(err.Error(), "Topic with this name already exists")
}
