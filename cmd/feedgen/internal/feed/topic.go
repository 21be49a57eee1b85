package feed

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readyPollAttempts = 5

// BrokerConn is the slice of *kafka.Conn the bootstrap needs.
type BrokerConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

type BrokerDialer interface {
	DialContext(ctx context.Context, network, address string) (BrokerConn, error)
}

type kafkaConn struct{ *kafka.Conn }

func (c kafkaConn) Controller() (kafka.Broker, error) { return c.Conn.Controller() }
func (c kafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	return c.Conn.CreateTopics(topics...)
}
func (c kafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return c.Conn.ReadPartitions(topics...)
}
func (c kafkaConn) Close() error { return c.Conn.Close() }

type kafkaDialer struct{ *kafka.Dialer }

func (d kafkaDialer) DialContext(ctx context.Context, network, address string) (BrokerConn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return kafkaConn{Conn: conn}, nil
}

// DefaultDialer adapts kafka-go's default dialer to the BrokerDialer seam.
func DefaultDialer() BrokerDialer {
	return kafkaDialer{Dialer: kafka.DefaultDialer}
}

// TopicBootstrap creates the feed topic before the first write so early
// quotes are not dropped while the cluster auto-creates it.
type TopicBootstrap struct {
	logger     *zap.Logger
	dialer     BrokerDialer
	clock      Clock
	partitions int
}

func NewTopicBootstrap(logger *zap.Logger, dialer BrokerDialer, clock Clock, partitions int) *TopicBootstrap {
	if partitions <= 0 {
		partitions = 1
	}
	return &TopicBootstrap{
		logger:     logger,
		dialer:     dialer,
		clock:      clock,
		partitions: partitions,
	}
}

// Ensure creates topic on the cluster behind brokers and waits until its
// partitions are visible. Creating an existing topic is not an error.
func (tb *TopicBootstrap) Ensure(brokers []string, topic string) error {
	ctx := context.Background()

	var conn BrokerConn
	var err error
	for _, addr := range brokers {
		if conn, err = tb.dialer.DialContext(ctx, "tcp", addr); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("no reachable broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("locate controller: %w", err)
	}

	controllerConn, err := tb.dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tb.partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		// Existing topics surface here on some broker versions.
		tb.logger.Info("topic create returned", zap.String("topic", topic), zap.Error(err))
	} else {
		tb.logger.Info("topic create requested",
			zap.String("topic", topic),
			zap.Int("partitions", tb.partitions))
	}

	if !tb.awaitReady(conn, topic) {
		return fmt.Errorf("topic %s not ready", topic)
	}
	return nil
}

// awaitReady polls until the topic's partitions show up in metadata.
func (tb *TopicBootstrap) awaitReady(conn BrokerConn, topic string) bool {
	for i := 0; i < readyPollAttempts; i++ {
		tb.clock.Sleep(200 * time.Millisecond)
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tb.logger.Info("topic ready",
				zap.String("topic", topic),
				zap.Int("partitions", len(partitions)))
			return true
		}
	}
	return false
}
