package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/i474232898/weather-collector/internal/weather"
)

var _ weather.Publisher = (*RabbitMQPublisher)(nil)

// session is one connection plus channel to the broker.
type session interface {
	Declare(queue string) error
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string, timeout time.Duration) (session, error)

// RabbitMQPublisher publishes each record over a fresh connection, declaring
// the durable queue first and marking the message persistent.
type RabbitMQPublisher struct {
	url   string
	queue string
	opts  options
	dial  dialFunc
}

// NewRabbitMQPublisher returns a RabbitMQ publisher for queue at url.
func NewRabbitMQPublisher(url, queue string, opts ...Option) (*RabbitMQPublisher, error) {
	if queue == "" {
		return nil, ErrEmptyQueue
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RabbitMQPublisher{
		url:   url,
		queue: queue,
		opts:  o,
		dial:  dialAMQP,
	}, nil
}

// Publish sends rec, retrying per the configured policy.
func (p *RabbitMQPublisher) Publish(ctx context.Context, rec weather.WeatherRecord) error {
	body, err := encode(p.queue, rec)
	if err != nil {
		return err
	}
	return publishWithRetry(ctx, "rabbitmq", p.queue, p.opts, func(ctx context.Context) error {
		return p.publishOnce(ctx, body)
	})
}

// CheckReady connects, declares the queue and disconnects, once.
func (p *RabbitMQPublisher) CheckReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := p.dial(p.url, p.opts.dialTimeout)
	if err != nil {
		return err
	}
	defer p.close(s)
	return s.Declare(p.queue)
}

func (p *RabbitMQPublisher) publishOnce(ctx context.Context, body []byte) error {
	s, err := p.dial(p.url, p.opts.dialTimeout)
	if err != nil {
		return err
	}
	defer p.close(s)

	if err := s.Declare(p.queue); err != nil {
		return err
	}

	return s.Publish(ctx, p.queue, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		AppId:        appID,
		Body:         body,
	})
}

func (p *RabbitMQPublisher) close(s session) {
	if err := s.Close(); err != nil {
		p.opts.logger.Debug("closing rabbitmq session", "err", err)
	}
}

type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialAMQP(url string, timeout time.Duration) (session, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": appID},
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &amqpSession{conn: conn, ch: ch}, nil
}

func (s *amqpSession) Declare(queue string) error {
	_, err := s.ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (s *amqpSession) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	return s.ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (s *amqpSession) Close() error {
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	if errors.Is(chErr, amqp.ErrClosed) {
		chErr = nil
	}
	if errors.Is(connErr, amqp.ErrClosed) {
		connErr = nil
	}
	return errors.Join(chErr, connErr)
}
