package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*KafkaBackend)(nil)

const (
	// consumeBackoff spaces out rejoin attempts while brokers are unreachable.
	consumeBackoff = time.Second
	// joinWait bounds how long Listen waits for the first group session.
	joinWait = 10 * time.Second
)

// KafkaBackend carries announcements over a Kafka topic per channel.
// Every Listen joins its own consumer group, so each display sees every
// message.
type KafkaBackend struct {
	brokers  []string
	producer sarama.SyncProducer
	cfg      *sarama.Config
	group    string
	log      *logger.Logger
}

// ParseBrokers splits "kafka://a:9092,b:9092" (scheme optional) into
// broker addresses.
func ParseBrokers(url string) []string {
	url = strings.TrimPrefix(url, "kafka://")
	var brokers []string
	for _, b := range strings.Split(url, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaBackend connects a synchronous producer to brokers. groupPrefix
// names the per-listener consumer groups.
func NewKafkaBackend(brokers []string, groupPrefix string, log *logger.Logger) (*KafkaBackend, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Debug("kafka backend: connected to %v", brokers)

	if groupPrefix == "" {
		groupPrefix = "turnocall"
	}
	return &KafkaBackend{brokers: brokers, producer: producer, cfg: cfg, group: groupPrefix, log: log}, nil
}

// Send produces payload to the channel topic.
func (k *KafkaBackend) Send(_ context.Context, channel string, payload []byte) error {
	_, _, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: channel,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

// Listen consumes the channel topic from the newest offset in a fresh
// consumer group until stop is called. It returns once the group has
// joined, so messages sent afterwards are delivered; if joining takes
// longer than joinWait it returns anyway and anything published before
// the first session starts is missed.
func (k *KafkaBackend) Listen(ctx context.Context, channel string, fn func([]byte)) (func(), error) {
	groupID := k.group + "-" + uuid.NewString()
	group, err := sarama.NewConsumerGroup(k.brokers, groupID, k.cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h := newClaimHandler(fn)
	go func() {
		defer close(done)
		for {
			// Consume returns on every rebalance; rejoin until stopped.
			err := group.Consume(runCtx, []string{channel}, h)
			if runCtx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				k.log.Warn("kafka backend: consume %s: %v", channel, err)
				select {
				case <-runCtx.Done():
					return
				case <-time.After(consumeBackoff):
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			_ = group.Close()
		})
	}

	select {
	case <-h.ready:
	case <-time.After(joinWait):
		k.log.Warn("kafka backend: group %s not joined after %s, early messages on %s may be missed", groupID, joinWait, channel)
	case <-ctx.Done():
		stop()
		return nil, ctx.Err()
	}
	return stop, nil
}

// Close shuts the producer down.
func (k *KafkaBackend) Close() error {
	return k.producer.Close()
}

type claimHandler struct {
	fn    func([]byte)
	ready chan struct{} // closed when the first session is set up
	once  sync.Once
}

func newClaimHandler(fn func([]byte)) *claimHandler {
	return &claimHandler{fn: fn, ready: make(chan struct{})}
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	return nil
}

func (*claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.fn(msg.Value)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
