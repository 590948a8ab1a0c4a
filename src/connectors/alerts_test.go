package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/model"
)

func testAlert(id string) PriorityAlert {
	return PriorityAlert{
		ExceptionID:     id,
		Type:            model.ExceptionLateShipment,
		Severity:        model.SeverityCritical,
		SinceMinutes:    61,
		SlaLimitMinutes: 30,
		Message:         "SLA exhausted",
		RaisedAt:        time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []PriorityAlert
	err    error
}

func (r *recordingNotifier) BroadcastPriorityAlert(_ context.Context, a PriorityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestRedisAlertGate(t *testing.T) {
	mr := miniredis.RunT(t)
	gate := NewRedisAlertGateWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	defer gate.Close()
	ctx := context.Background()

	ok, err := gate.Allow(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Allow(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = gate.Allow(ctx, "SHIP-2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = gate.Allow(ctx, "SHIP-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGatedNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	gate := NewRedisAlertGateWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	sink := &recordingNotifier{}
	n := GatedNotifier{Gate: gate, Next: sink}

	require.NoError(t, n.BroadcastPriorityAlert(context.Background(), testAlert("RCV-1")))
	require.NoError(t, n.BroadcastPriorityAlert(context.Background(), testAlert("RCV-1")))
	assert.Len(t, sink.alerts, 1)

	// gate down: alerts still flow
	mr.Close()
	require.NoError(t, n.BroadcastPriorityAlert(context.Background(), testAlert("RCV-1")))
	assert.Len(t, sink.alerts, 2)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("sink down")}

	err := MultiNotifier{failing, nil, ok}.BroadcastPriorityAlert(context.Background(), testAlert("LOC-1"))
	require.Error(t, err)
	assert.Len(t, ok.alerts, 1)
	assert.Len(t, failing.alerts, 1)
}

type fakeWriter struct {
	fails int
	msgs  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fails > 0 {
		w.fails--
		return errors.New("leader not available")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaAlertPublisher(t *testing.T) {
	w := &fakeWriter{fails: 1}
	p := NewKafkaAlertPublisherWithWriter(w, "alerts")

	require.NoError(t, p.BroadcastPriorityAlert(context.Background(), testAlert("SHIP-9")))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "SHIP-9", string(w.msgs[0].Key))

	var decoded PriorityAlert
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, model.SeverityCritical, decoded.Severity)

	w.fails = 5
	require.Error(t, p.BroadcastPriorityAlert(context.Background(), testAlert("SHIP-9")))

	_, err := NewKafkaAlertPublisher(nil, "alerts")
	require.Error(t, err)
}

func TestAlertHubBroadcast(t *testing.T) {
	hub := NewAlertHub()
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastPriorityAlert(context.Background(), testAlert("GAP-1-RCV-2")))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got PriorityAlert
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "GAP-1-RCV-2", got.ExceptionID)
}
