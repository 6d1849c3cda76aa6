package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	failures  int
	published []amqp.Publishing
	keys      []string
	calls     int
	closed    bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.calls++
	if f.calls <= f.failures {
		return amqp.ErrClosed
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestClient(ch *fakeChannel, cfg *Config) *Client {
	return &Client{
		config:      cfg,
		channel:     ch,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		isConnected: true,
	}
}

func TestClient_PublishWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", failures: 0, retries: 2, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, retries: 2, wantCalls: 3},
		{name: "gives up", failures: 5, retries: 2, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{failures: tt.failures}
			client := newTestClient(ch, &Config{
				ExchangeName:      "entries",
				RoutingKey:        "accepted",
				PublishRetries:    tt.retries,
				PublishRetryDelay: time.Millisecond,
			})

			err := client.PublishWithRetry(context.Background(), []byte(`{"title":"a"}`), "application/json")

			assert.Equal(t, tt.wantCalls, ch.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, amqp.ErrClosed)
				assert.Contains(t, err.Error(), "after 3 attempts")
				return
			}
			require.NoError(t, err)
			require.Len(t, ch.published, 1)
			assert.Equal(t, "entries/accepted", ch.keys[0])
			assert.Equal(t, "application/json", ch.published[0].ContentType)
			assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
			assert.NotEmpty(t, ch.published[0].MessageId)
		})
	}
}

func TestClient_PublishWithRetryCancelled(t *testing.T) {
	ch := &fakeChannel{failures: 10}
	client := newTestClient(ch, &Config{
		PublishRetries:    5,
		PublishRetryDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := client.PublishWithRetry(ctx, []byte("x"), "text/plain")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, ch.calls)
}

func TestClient_NotConnected(t *testing.T) {
	client := newTestClient(&fakeChannel{}, &Config{})
	require.NoError(t, client.Close())

	assert.ErrorIs(t, client.Publish(context.Background(), nil, ""), ErrNotConnected)
	assert.ErrorIs(t, client.PublishWithRetry(context.Background(), nil, ""), ErrNotConnected)
	assert.False(t, client.IsConnected())
}

func TestClient_Publish(t *testing.T) {
	ch := &fakeChannel{failures: 1}
	client := newTestClient(ch, &Config{ExchangeName: "entries"})

	err := client.Publish(context.Background(), []byte("x"), "text/plain")
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))

	require.NoError(t, client.Publish(context.Background(), []byte("x"), "text/plain"))
	assert.Len(t, ch.published, 1)
}

func TestClient_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		attempt int
		want    time.Duration
	}{
		{name: "defaults first", attempt: 0, want: 100 * time.Millisecond},
		{name: "defaults third", attempt: 2, want: 400 * time.Millisecond},
		{
			name:    "custom multiplier",
			config:  Config{PublishRetryDelay: time.Second, PublishBackoffMult: 3},
			attempt: 2,
			want:    9 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			client := newTestClient(&fakeChannel{}, &cfg)
			assert.Equal(t, tt.want, client.backoff(tt.attempt))
		})
	}
}

func TestClient_CloseClosesChannel(t *testing.T) {
	ch := &fakeChannel{}
	client := newTestClient(ch, &Config{})

	require.NoError(t, client.Close())
	assert.True(t, ch.closed)
	// second close is a no-op
	require.NoError(t, client.Close())
}
