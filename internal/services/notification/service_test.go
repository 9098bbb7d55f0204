package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []string
	err  error
	done chan struct{}
}

func (d *recordingDispatcher) Send(_ context.Context, userID, template string, _ map[string]string) error {
	d.mu.Lock()
	d.sent = append(d.sent, userID+":"+template)
	d.mu.Unlock()
	if d.done != nil {
		d.done <- struct{}{}
	}
	return d.err
}

func TestNotifier_NotifyIsAsyncAndSkipsBlankUsers(t *testing.T) {
	d := &recordingDispatcher{done: make(chan struct{}, 2), err: errors.New("smtp down")}
	n := NewNotifier(d, time.Second)

	n.Notify(TemplateOfferAccepted, map[string]string{"offerId": "o1"}, "investor", "", "startup")

	for i := 0; i < 2; i++ {
		select {
		case <-d.done:
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	assert.ElementsMatch(t, []string{"investor:offer_accepted", "startup:offer_accepted"}, d.sent)
}

func TestNotifier_WaitDrainsInflightDeliveries(t *testing.T) {
	d := &slowDispatcher{delay: 20 * time.Millisecond}
	n := NewNotifier(d, time.Second)

	n.Notify(TemplateEscrowLapsed, nil, "a", "b")
	n.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.ElementsMatch(t, []string{"a:escrow_lapsed", "b:escrow_lapsed"}, d.sent)
}

func TestNotifier_WaitWithNothingInflight(t *testing.T) {
	NewNotifier(nil, 0).Wait()
}

type slowDispatcher struct {
	mu    sync.Mutex
	sent  []string
	delay time.Duration
}

func (d *slowDispatcher) Send(ctx context.Context, userID, template string, _ map[string]string) error {
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	d.mu.Lock()
	d.sent = append(d.sent, userID+":"+template)
	d.mu.Unlock()
	return nil
}

func TestLogDispatcher(t *testing.T) {
	assert.NoError(t, NewLogDispatcher().Send(context.Background(), "u", TemplateOfferReceived, map[string]string{"b": "2", "a": "1"}))
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaDispatcher_Send(t *testing.T) {
	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w, topic: "investment.notifications"}

	require.NoError(t, d.Send(context.Background(), "investor-1", TemplatePaymentReceived, map[string]string{"amount": "1500.00"}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "investment.notifications", msg.Topic)
	assert.Equal(t, []byte("investor-1"), msg.Key)

	var event notificationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "investor-1", event.UserID)
	assert.Equal(t, TemplatePaymentReceived, event.Template)
	assert.Equal(t, "1500.00", event.Variables["amount"])
}

func TestNewKafkaDispatcher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaDispatcher(nil, "topic")
	assert.Error(t, err)
}
