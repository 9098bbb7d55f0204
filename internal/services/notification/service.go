// Package notification delivers templated messages to users. Delivery is fire and
// forget: callers never roll back on a notification failure.
package notification

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Templates understood by downstream renderers
const (
	TemplateOfferReceived       = "offer_received"
	TemplateOfferAccepted       = "offer_accepted"
	TemplateOfferDeclined       = "offer_declined"
	TemplateAgreementReady      = "agreement_ready"
	TemplateAgreementSigned     = "agreement_signed"
	TemplatePaymentInitiated    = "payment_initiated"
	TemplatePaymentReceived     = "payment_received"
	TemplatePaymentFailed       = "payment_failed"
	TemplateInvestmentCompleted = "investment_completed"
	TemplateEscrowLapsed        = "escrow_lapsed"
)

// Dispatcher sends one message to one user.
type Dispatcher interface {
	Send(ctx context.Context, userID, template string, vars map[string]string) error
}

// LogDispatcher writes notifications to the log.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher { return &LogDispatcher{} }

func (LogDispatcher) Send(ctx context.Context, userID, template string, vars map[string]string) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+vars[k])
	}
	log.Printf("[notify] user=%s template=%s %s", userID, template, strings.Join(parts, " "))
	return nil
}

// Notifier fans a message out to several users without blocking the caller.
type Notifier struct {
	dispatcher Dispatcher
	timeout    time.Duration
	inflight   sync.WaitGroup
}

func NewNotifier(d Dispatcher, timeout time.Duration) *Notifier {
	if d == nil {
		d = NewLogDispatcher()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{dispatcher: d, timeout: timeout}
}

// Notify delivers in the background. Failures are logged.
func (n *Notifier) Notify(template string, vars map[string]string, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		n.inflight.Add(1)
		go func(userID string) {
			defer n.inflight.Done()
			n.deliver(userID, template, vars)
		}(id)
	}
}

// Wait blocks until every delivery started by Notify has finished. Each delivery
// is bounded by the notifier timeout. Call it before closing the dispatcher.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

func (n *Notifier) deliver(userID, template string, vars map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.dispatcher.Send(ctx, userID, template, vars); err != nil {
		log.Printf("[notify] failed to send %s to user %s: %v", template, userID, err)
	}
}
