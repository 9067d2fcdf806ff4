package unit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application/workers"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/messaging"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/outbox"
)

type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, envelope ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, envelope)
	return nil
}

func (p *recordingPublisher) types() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, envelope := range p.envelopes {
		counts[envelope.EventType]++
	}
	return counts
}

func TestOutboxRelayPublishesPendingMessages(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{
		Outbox:    module.Store,
		Publisher: publisher,
		Clock:     module.Store,
		BatchSize: 50,
	}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}

	counts := publisher.types()
	if counts[application.EventPoolActivated] != 1 {
		t.Fatalf("expected one activation event, got %d", counts[application.EventPoolActivated])
	}
	if counts[application.EventContributionMade] != 2 {
		t.Fatalf("expected two contribution events, got %d", counts[application.EventContributionMade])
	}
	if counts[application.EventVoteCast] != 2 {
		t.Fatalf("expected two vote events, got %d", counts[application.EventVoteCast])
	}

	for _, message := range module.Store.Messages() {
		if message.Status != outbox.StatusPublished {
			t.Fatalf("expected message %s published, got %s", message.ID, message.Status)
		}
		if message.PublishedAt == nil {
			t.Fatalf("expected publish timestamp on message %s", message.ID)
		}
	}

	// A second pass finds nothing pending.
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("second relay pass failed: %v", err)
	}
	if got := len(publisher.envelopes); got != 5 {
		t.Fatalf("expected 5 published envelopes total, got %d", got)
	}
}

func TestOutboxRelayQuarantinesUndecodableMessage(t *testing.T) {
	ctx := context.Background()
	module, _ := newActivePool(t, domainservices.DefaultPolicySet())

	if err := module.Store.AppendMessages(ctx, []outbox.Message{{
		ID:        "poison-1",
		EventType: "pool.activated",
		Payload:   []byte("{not json"),
		Status:    outbox.StatusPending,
		CreatedAt: baseTime,
	}}); err != nil {
		t.Fatalf("append poison message failed: %v", err)
	}

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{
		Outbox:    module.Store,
		Publisher: publisher,
		Clock:     module.Store,
	}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay pass failed: %v", err)
	}

	var poisoned bool
	for _, message := range module.Store.Messages() {
		if message.ID != "poison-1" {
			continue
		}
		poisoned = true
		if message.Status != outbox.StatusFailed {
			t.Fatalf("expected poison message failed, got %s", message.Status)
		}
		if message.RetryCount != 1 {
			t.Fatalf("expected retry count 1, got %d", message.RetryCount)
		}
	}
	if !poisoned {
		t.Fatalf("poison message missing from outbox")
	}
	// The healthy activation event still went out.
	if counts := publisher.types(); counts[application.EventPoolActivated] != 1 {
		t.Fatalf("expected activation event despite poison row, got %v", counts)
	}
}

func TestDeadlineCloserClosesDuePools(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)

	closer := workers.DeadlineCloser{
		Pools:      module.Store,
		Controller: module.Service,
		Clock:      module.Store,
	}

	// Before the deadline nothing happens.
	if err := closer.RunOnce(ctx); err != nil {
		t.Fatalf("closer pass failed: %v", err)
	}
	current, err := module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if current.Status != entities.PoolStatusActive {
		t.Fatalf("expected pool still active, got %s", current.Status)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	if err := closer.RunOnce(ctx); err != nil {
		t.Fatalf("closer pass failed: %v", err)
	}
	current, err = module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if current.Status != entities.PoolStatusFunded {
		t.Fatalf("expected funded pool after deadline, got %s", current.Status)
	}
	result, err := module.Service.AllocationResult(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("allocation result failed: %v", err)
	}
	if len(result.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(result.Winners))
	}
}

func TestTopicPublisherDeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := messaging.NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("build bus failed: %v", err)
	}

	received := make(chan ports.EventEnvelope, 1)
	if err := bus.Subscribe(ctx, "pool-engine.events", func(_ context.Context, envelope ports.EventEnvelope) error {
		received <- envelope
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	publisher := messaging.TopicPublisher{Bus: bus, Topic: "pool-engine.events"}
	if err := publisher.Publish(ctx, ports.EventEnvelope{
		EventID:   "evt-1",
		EventType: "pool.activated",
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case envelope := <-received:
		if envelope.EventID != "evt-1" {
			t.Fatalf("unexpected envelope: %+v", envelope)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never received the event")
	}
}
