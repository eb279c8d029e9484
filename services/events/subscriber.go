package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/h2linker/sendqueue/dto"
	"github.com/h2linker/sendqueue/interfaces"
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/internal/utils"
)

type SubscriberConfig struct {
	// Prefetch bounds how many drain requests one replica works on at once.
	Prefetch            int
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
	config          SubscriberConfig
	listeners       map[string]interfaces.EventListener
	listenerMutex   sync.RWMutex
	closing         chan struct{}
	closeOnce       sync.Once
}

func NewRabbitMQSubscriber(rabbitmqURL string, logger logger.Logger, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = &SubscriberConfig{
			Prefetch:            4,
			ReconnectBackoff:    time.Second,
			MaxReconnectBackoff: time.Second * 30,
		}
	}

	subscriber := newSubscriber(logger, config)
	subscriber.url = rabbitmqURL

	err := subscriber.connect()
	if err != nil {
		return nil, err
	}

	return subscriber, nil
}

func newSubscriber(logger logger.Logger, config *SubscriberConfig) *RabbitMQSubscriber {
	return &RabbitMQSubscriber{
		logger:    logger,
		config:    *config,
		listeners: make(map[string]interfaces.EventListener),
		closing:   make(chan struct{}),
	}
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.listenerMutex.Lock()
	defer r.listenerMutex.Unlock()

	eventType := listener.GetEventType()
	r.listeners[eventType] = listener
	r.logger.Infof("Registered listener for event type: %s on queue: %s",
		eventType, listener.GetQueueName())
}

// ListenQueue consumes queueName in the background, reconnecting with backoff until the subscriber is closed.
func (r *RabbitMQSubscriber) ListenQueue(queueName string) error {
	go func() {
		backoff := r.config.ReconnectBackoff
		for {
			if r.isClosing() {
				return
			}
			consumed, err := r.consume(queueName)
			if r.isClosing() {
				return
			}
			if consumed {
				backoff = r.config.ReconnectBackoff
			}
			if err != nil {
				r.logger.Errorf("Consumer on queue %s stopped: %v. Retrying in %v", queueName, err, backoff)
			} else {
				r.logger.Warnf("Connection lost for queue %s. Reconnecting in %v", queueName, backoff)
			}
			time.Sleep(backoff)
			backoff *= 2
			if backoff > r.config.MaxReconnectBackoff {
				backoff = r.config.MaxReconnectBackoff
			}
		}
	}()

	return nil
}

// consume runs one consumer session until its delivery channel closes.
func (r *RabbitMQSubscriber) consume(queueName string) (bool, error) {
	r.connectionMutex.Lock()
	conn := r.connection
	r.connectionMutex.Unlock()
	if conn == nil || conn.IsClosed() {
		return false, errors.New("no open connection")
	}

	channel, err := conn.Channel()
	if err != nil {
		return false, errors.Wrap(err, "open channel")
	}
	defer channel.Close()

	if r.config.Prefetch > 0 {
		if err := channel.Qos(r.config.Prefetch, 0, false); err != nil {
			return false, errors.Wrap(err, "set prefetch")
		}
	}

	msgs, err := channel.Consume(
		queueName, // queue
		"",        // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return false, errors.Wrap(err, "register consumer")
	}

	r.logger.Infof("Listening for messages on queue %s", queueName)

	var wg sync.WaitGroup
	for d := range msgs {
		wg.Add(1)
		go func(d amqp091.Delivery) {
			defer wg.Done()
			r.handleMessage(d, queueName)
		}(d)
	}
	wg.Wait()
	return true, nil
}

func (r *RabbitMQSubscriber) handleMessage(d amqp091.Delivery, queueName string) {
	defer tracing.RecoverAndLogToJaeger(r.logger)

	err := r.dispatch(context.Background(), d.Body, queueName)
	if err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", queueName, err)
		r.retryAckNack(d, false)
	} else {
		r.retryAckNack(d, true)
	}
}

// dispatch decodes one message body and hands it to the listener registered for its event type.
func (r *RabbitMQSubscriber) dispatch(ctx context.Context, body []byte, queueName string) error {
	var event dto.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}

	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{
		AppSource: event.Metadata.AppSource,
		UserId:    event.Metadata.UserId,
		UserEmail: event.Metadata.UserEmail,
	})

	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.ProcessMessage", event.Metadata.UberTraceId)
	defer span.Finish()
	span.LogKV("event_type", event.Event.EventType)
	span.LogKV("queue_name", queueName)

	r.listenerMutex.RLock()
	listener, exists := r.listeners[event.Event.EventType]
	r.listenerMutex.RUnlock()

	if !exists {
		r.logger.Infof("No listener found for event type: %s on queue: %s", event.Event.EventType, queueName)
		return nil
	}

	if listener.GetQueueName() != queueName {
		r.logger.Warnf("Event type %s received on wrong queue. Expected %s, got %s",
			event.Event.EventType, listener.GetQueueName(), queueName)
		return nil
	}

	err := listener.Handle(ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	connection, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	r.connection = connection

	go r.watchConnection(connection)

	return nil
}

func (r *RabbitMQSubscriber) watchConnection(connection *amqp091.Connection) {
	notifyClose := connection.NotifyClose(make(chan *amqp091.Error, 1))
	amqpErr, ok := <-notifyClose
	if !ok || amqpErr == nil || r.isClosing() {
		return
	}
	r.logger.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", amqpErr)

	backoff := r.config.ReconnectBackoff
	for !r.isClosing() {
		if err := r.connect(); err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			return
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > r.config.MaxReconnectBackoff {
			backoff = r.config.MaxReconnectBackoff
		}
	}
}

func (r *RabbitMQSubscriber) retryAckNack(d amqp091.Delivery, ack bool) {
	maxRetries := 5
	retryDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}

		if err == nil {
			return
		}

		time.Sleep(retryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		maxRetries)
}

func (r *RabbitMQSubscriber) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

func (r *RabbitMQSubscriber) Close() error {
	r.closeOnce.Do(func() { close(r.closing) })

	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}
