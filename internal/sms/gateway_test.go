package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestVerificationMessage(t *testing.T) {
	assert.Equal(t, "Your login verification code is: 123456", VerificationMessage("123456"))
}

func TestHTTPGateway_Send(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	g := NewHTTPGateway("test-api-key", server.URL, "AUTH", time.Second)
	require.NoError(t, g.Send(context.Background(), "+11111111111", "hello"))
	assert.Equal(t, sendRequest{To: "+11111111111", From: "AUTH", Message: "hello"}, got)
}

func TestHTTPGateway_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewHTTPGateway("k", server.URL, "", time.Second).Send(context.Background(), "+1", "m")
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "status=429")

	err = NewHTTPGateway("k", "", "", 0).Send(context.Background(), "+1", "m")
	assert.ErrorIs(t, err, ErrDelivery)

	err = NewHTTPGateway("k", "http://127.0.0.1:1", "", time.Second).Send(context.Background(), "+1", "m")
	assert.ErrorIs(t, err, ErrDelivery)
}

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	err   error
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, _ map[string]string) error {
	f.topic, f.key, f.value = topic, key, value
	return f.err
}

func TestKafkaGateway(t *testing.T) {
	p := &fakeProducer{}
	g := NewKafkaGateway(p, "sms-outbox")
	require.NoError(t, g.Send(context.Background(), "+11111111111", "hello"))

	assert.Equal(t, "sms-outbox", p.topic)
	assert.Equal(t, "+11111111111", string(p.key))
	var msg outboxMessage
	require.NoError(t, json.Unmarshal(p.value, &msg))
	assert.Equal(t, "hello", msg.Message)

	p.err = errors.New("broker down")
	assert.ErrorIs(t, g.Send(context.Background(), "+1", "m"), ErrDelivery)
}

func TestLogGateway(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g := NewLogGateway(zap.New(core))
	require.NoError(t, g.Send(context.Background(), "+11111111111", "hello"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "+11111111111", logs.All()[0].ContextMap()["phone_number"])
}
