package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/testutil"
)

// mockKafkaReader replays msgs, then blocks until the context ends.
type mockKafkaReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.fetchErrs) > 0 {
		err := m.fetchErrs[0]
		m.fetchErrs = m.fetchErrs[1:]
		m.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(m.msgs) > 0 {
		msg := m.msgs[0]
		m.msgs = m.msgs[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.closed = true
	return nil
}

func (m *mockKafkaReader) committedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

func kafkaMsg(body string) kafka.Message {
	return kafka.Message{Value: []byte(body)}
}

func envelopeMsg(t *testing.T, id string) kafka.Message {
	t.Helper()
	env, err := NewEventEnvelope(id, "matching.completed", time.Now(), map[string]string{"run_id": id})
	require.NoError(t, err)
	msg, err := env.ToMessage(id)
	require.NoError(t, err)
	return msg
}

func TestNewConsumer_RequiresGroup(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{Brokers: []string{"k:9092"}, Topic: "t"}, nil)
	assert.Error(t, err)
}

func TestConsumer_Run_DeliversAndCommits(t *testing.T) {
	r := &mockKafkaReader{msgs: []kafka.Message{
		envelopeMsg(t, "e1"),
		kafkaMsg("garbage"),
		envelopeMsg(t, "e2"),
	}}
	log := testutil.NewMockLogger()
	c := NewConsumerWithReader(r, log)

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(_ context.Context, env *EventEnvelope) error {
			seen = append(seen, env.EventID)
			if env.EventID == "e2" {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []string{"e1", "e2"}, seen)
	assert.Equal(t, 3, r.committedCount())
	assert.True(t, log.HasMessage("warn", "Skipping undecodable message"))
}

func TestConsumer_Run_HandlerErrorStillCommits(t *testing.T) {
	r := &mockKafkaReader{msgs: []kafka.Message{envelopeMsg(t, "e1")}}
	log := testutil.NewMockLogger()
	c := NewConsumerWithReader(r, log)

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Run(ctx, func(context.Context, *EventEnvelope) error {
		cancel()
		return errors.New("downstream unavailable")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.committedCount())
	assert.True(t, log.HasMessage("error", "Event handler failed"))
}

func TestConsumer_Run_BacksOffOnFetchError(t *testing.T) {
	r := &mockKafkaReader{fetchErrs: []error{errors.New("broker down")}}
	log := testutil.NewMockLogger()
	c := NewConsumerWithReader(r, log)
	c.errorBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx, func(context.Context, *EventEnvelope) error { return nil }))
	assert.True(t, log.HasMessage("error", "FetchMessage error"))
}

func TestConsumer_Close(t *testing.T) {
	r := &mockKafkaReader{}
	require.NoError(t, NewConsumerWithReader(r, nil).Close())
	assert.True(t, r.closed)
}
