package amqpnotify

import (
	"sync"

	"github.com/streadway/amqp"
)

// MockBroker is an in-memory AMQP stand-in: one process-local fanout
// router. It implements AMQPDialer, AMQPConnection, and hands out
// MockChannels whose published messages are routed to every queue bound
// to the same exchange.
type MockBroker struct {
	mu       sync.Mutex
	queueSeq int
	bindings map[string][]chan amqp.Delivery // exchange -> bound queues
	queues   map[string]chan amqp.Delivery
}

// NewMockBroker returns an empty broker.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		bindings: make(map[string][]chan amqp.Delivery),
		queues:   make(map[string]chan amqp.Delivery),
	}
}

// Dial implements AMQPDialer; the URL is ignored.
func (b *MockBroker) Dial(string) (AMQPConnection, error) {
	return b, nil
}

// Channel implements AMQPConnection.
func (b *MockBroker) Channel() (AMQPChannel, error) {
	return &MockChannel{broker: b}, nil
}

// Close implements AMQPConnection.
func (b *MockBroker) Close() error { return nil }

func (b *MockBroker) declareQueue(name string) (string, chan amqp.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		b.queueSeq++
		name = "mock.gen-" + string(rune('a'+b.queueSeq%26)) + "." + itoa(b.queueSeq)
	}
	if q, ok := b.queues[name]; ok {
		return name, q
	}
	q := make(chan amqp.Delivery, 64)
	b.queues[name] = q
	return name, q
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (b *MockBroker) bind(queue, exchange string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		b.bindings[exchange] = append(b.bindings[exchange], q)
	}
}

// forget removes q from every binding and the queue table so a publish
// after the consumer closed cannot write to a closed channel.
func (b *MockBroker) forget(q chan amqp.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for exchange, bound := range b.bindings {
		kept := bound[:0]
		for _, candidate := range bound {
			if candidate != q {
				kept = append(kept, candidate)
			}
		}
		b.bindings[exchange] = kept
	}
	for name, candidate := range b.queues {
		if candidate == q {
			delete(b.queues, name)
		}
	}
}

func (b *MockBroker) publish(exchange string, msg amqp.Publishing) {
	b.mu.Lock()
	targets := append([]chan amqp.Delivery(nil), b.bindings[exchange]...)
	b.mu.Unlock()
	for _, q := range targets {
		select {
		case q <- amqp.Delivery{Body: msg.Body, ContentType: msg.ContentType}:
		default:
		}
	}
}

// MockChannel implements AMQPChannel against the owning MockBroker.
type MockChannel struct {
	broker *MockBroker
	mu     sync.Mutex
	owned  []chan amqp.Delivery
	closed bool
}

// ExchangeDeclare accepts any exchange without recording it; fanout
// routing is implicit.
func (c *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return nil
}

// QueueDeclare creates (or returns) an in-memory queue.
func (c *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	declared, _ := c.broker.declareQueue(name)
	return amqp.Queue{Name: declared}, nil
}

// QueueBind routes the exchange's messages into the queue.
func (c *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.broker.bind(name, exchange)
	return nil
}

// Publish fans the message out to every bound queue.
func (c *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.broker.publish(exchange, msg)
	return nil
}

// Consume returns the queue's delivery channel.
func (c *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	_, q := c.broker.declareQueue(queue)
	c.mu.Lock()
	c.owned = append(c.owned, q)
	c.mu.Unlock()
	return q, nil
}

// Close unbinds and closes the channel's consumers so their goroutines
// exit.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, q := range c.owned {
		c.broker.forget(q)
		close(q)
	}
	return nil
}
