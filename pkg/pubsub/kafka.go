package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
)

const (
	kafkaBus         = "kafka"
	headerEventType  = "event_type"
	pollTimeoutMs    = 500
	flushTimeoutMs   = 5000
	defaultGroupID   = "yodoo-api"
	defaultPartition = 3
)

// streams are the event families that get a topic each.
var streams = []string{"billing", "usage"}

// route is where a channel lives on Kafka: one topic per stream, keyed
// by user so a user's events keep their order within a partition.
type route struct {
	topic string
	key   string
}

// parseChannel maps "{stream}:user:{userID}:events" to its route.
//
//	"billing:user:U1:events" → topic "billing-events", key "U1"
//	"usage:user:*:events"    → topic "usage-events", key "*"
func parseChannel(channel string) (route, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] == "" || parts[1] != "user" || parts[2] == "" || parts[3] != "events" {
		return route{}, fmt.Errorf("invalid channel format: %s", channel)
	}
	return route{topic: parts[0] + "-events", key: parts[2]}, nil
}

func (r route) wildcard() bool { return r.key == "*" }

type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// KafkaPubSub carries billing and usage events over Kafka. Pattern
// subscribers share one consumer group so each event is handled once
// per deployment; exact-channel subscribers get a private group.
type KafkaPubSub struct {
	producer      *kafka.Producer
	cfg           KafkaConfig
	mu            sync.Mutex
	subscriptions map[string]*kafkaSubscription
	doneCh        chan struct{}
}

// NewKafkaPubSub connects the producer and creates the stream topics.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaultPartition
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:      p,
		cfg:           cfg,
		subscriptions: make(map[string]*kafkaSubscription),
		doneCh:        make(chan struct{}),
	}
	go k.watchDeliveries()

	if err := k.ensureTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, 0, len(streams))
	for _, s := range streams {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             s + "-events",
			NumPartitions:     k.cfg.Partitions,
			ReplicationFactor: 1,
		})
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			l := log.L()
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

// watchDeliveries records the broker acknowledgement of each publish.
func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.doneCh)
	for e := range k.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if err := m.TopicPartition.Error; err != nil {
			metrics.RecordEvent(kafkaBus, "publish", "error")
			l := log.L()
			l.Error().Err(err).Str("topic", topicName(m.TopicPartition.Topic)).Msg("kafka delivery failed")
			continue
		}
		metrics.RecordEvent(kafkaBus, "publish", "ok")
	}
}

func topicName(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Publish enqueues the event; delivery is confirmed asynchronously.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	r, err := parseChannel(channel)
	if err != nil {
		return err
	}
	if r.wildcard() {
		return fmt.Errorf("cannot publish to pattern %s", channel)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &r.topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.key),
		Value:          data,
		Timestamp:      event.Timestamp,
		Headers:        []kafka.Header{{Key: headerEventType, Value: []byte(event.Type)}},
	}, nil)
	if err != nil {
		metrics.RecordEvent(kafkaBus, "publish", "error")
		return fmt.Errorf("failed to produce to %s: %w", r.topic, err)
	}
	return nil
}

// Subscribe receives the events of one user.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	r, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}
	if r.wildcard() {
		return nil, fmt.Errorf("use SubscribePattern for %s", channel)
	}
	group := k.cfg.GroupID + "-" + sanitizeGroupID(channel)
	return k.subscribe(ctx, channel, r, group)
}

// SubscribePattern receives the events of every user on a stream.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	r, err := parseChannel(pattern)
	if err != nil {
		return nil, err
	}
	if !r.wildcard() {
		return nil, fmt.Errorf("pattern must use a * user: %s", pattern)
	}
	return k.subscribe(ctx, pattern, r, k.cfg.GroupID)
}

func (k *KafkaPubSub) subscribe(ctx context.Context, subKey string, r route, group string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.closeLocked(subKey)

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.cfg.Brokers,
		"group.id":           group,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(r.topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
	events := make(chan *Event, 100)
	k.subscriptions[subKey] = sub

	filter := ""
	if !r.wildcard() {
		filter = r.key
	}
	go func() {
		defer close(sub.done)
		defer c.Close()
		k.consume(subCtx, c, events, filter)
	}()
	return events, nil
}

// consume forwards messages until ctx ends. Delivery blocks rather than
// drops: a lost invalidation would serve a stale usage summary.
func (k *KafkaPubSub) consume(ctx context.Context, c *kafka.Consumer, events chan<- *Event, userID string) {
	defer close(events)
	l := log.L().With().Str("bus", kafkaBus).Logger()

	for ctx.Err() == nil {
		switch e := c.Poll(pollTimeoutMs).(type) {
		case nil:
		case *kafka.Message:
			if userID != "" && string(e.Key) != userID {
				continue
			}
			var ev Event
			if err := json.Unmarshal(e.Value, &ev); err != nil {
				metrics.RecordEvent(kafkaBus, "consume", "dropped")
				l.Warn().Err(err).Str("topic", topicName(e.TopicPartition.Topic)).Msg("dropping malformed event")
				continue
			}
			select {
			case events <- &ev:
				metrics.RecordEvent(kafkaBus, "consume", "ok")
			case <-ctx.Done():
				return
			}
		case kafka.Error:
			metrics.RecordEvent(kafkaBus, "consume", "error")
			l.Error().Str("error", e.Error()).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closeLocked(channel)
	return nil
}

// closeLocked stops a consumer and waits for it to leave its group.
func (k *KafkaPubSub) closeLocked(key string) {
	sub, ok := k.subscriptions[key]
	if !ok {
		return
	}
	delete(k.subscriptions, key)
	sub.cancel()
	<-sub.done
}

// Close stops every consumer and flushes pending publishes.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for key := range k.subscriptions {
		k.closeLocked(key)
	}
	k.mu.Unlock()

	if n := k.producer.Flush(flushTimeoutMs); n > 0 {
		l := log.L()
		l.Warn().Int("pending", n).Msg("kafka events not delivered before shutdown")
	}
	k.producer.Close()
	<-k.doneCh
	return nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
