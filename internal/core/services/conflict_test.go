package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

func newResolverFixture(t *testing.T, merger driven.Merger) (*ConflictResolver, *executorFixture) {
	t.Helper()
	f := newExecutorFixture(t, domain.Config{EnableConflictDetection: true})
	resolver := NewConflictResolver(ResolverConfig{
		Queue:    f.queue,
		Executor: f.executor,
		Merger:   merger,
		Logger:   testLogger(),
	})
	return resolver, f
}

func strategyWith(res domain.ConflictResolution) domain.SyncStrategy {
	return domain.SyncStrategy{
		Mode:               domain.SyncModeIncremental,
		ConflictResolution: res,
		Retry:              domain.RetryPolicy{MaxRetries: 3, RetryDelay: time.Second, BackoffMultiplier: 2},
	}
}

func conflicted(op *domain.Operation) ConflictedDelivery {
	return ConflictedDelivery{
		Op: op,
		Conflict: &driven.DeliveryConflict{
			Remote:  json.RawMessage(`{"title":"server"}`),
			Message: "version mismatch",
		},
	}
}

func TestConflictResolver_ServerWins(t *testing.T) {
	resolver, f := newResolverFixture(t, nil)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)

	record, bytes := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionServerWins))

	if !record.Resolved {
		t.Error("server_wins must resolve")
	}
	if bytes != 0 {
		t.Errorf("server_wins transfers nothing, got %d", bytes)
	}
	// Local operation discarded.
	if f.queue.Len() != 0 {
		t.Error("expected operation removed")
	}
	if f.transport.CallsFor("op-1") != 0 {
		t.Error("server_wins must not redeliver")
	}
}

func TestConflictResolver_LocalWins(t *testing.T) {
	resolver, f := newResolverFixture(t, nil)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)
	// The scripted conflict is skipped for force-overwrite deliveries, so
	// the redelivery lands.
	f.transport.Conflict = &driven.DeliveryConflict{Message: "version mismatch"}

	record, bytes := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionLocalWins))

	if !record.Resolved {
		t.Error("local_wins must resolve via forced redelivery")
	}
	if bytes != 64 {
		t.Errorf("expected redelivery bytes, got %d", bytes)
	}
	if f.queue.Len() != 0 {
		t.Error("expected operation removed after redelivery")
	}

	calls := f.transport.Calls()
	if len(calls) != 1 || !calls[0].Opts.ForceOverwrite {
		t.Errorf("expected one forced delivery, got %+v", calls)
	}
}

func TestConflictResolver_LocalWinsRedeliveryFails(t *testing.T) {
	resolver, f := newResolverFixture(t, nil)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)
	f.transport.FailTimes = 100

	record, _ := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionLocalWins))

	if record.Resolved {
		t.Error("failed redelivery must not resolve")
	}
	got, err := f.queue.Get("op-1")
	if err != nil {
		t.Fatalf("operation must stay queued: %v", err)
	}
	if !got.ConflictPending {
		t.Error("expected operation parked for manual resolution")
	}
}

func TestConflictResolver_Merge(t *testing.T) {
	merger := driven.MergerFunc(func(ctx context.Context, op *domain.Operation, remote json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"title":"merged"}`), nil
	})
	resolver, f := newResolverFixture(t, merger)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)

	record, bytes := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionMerge))

	if !record.Resolved {
		t.Error("merge must resolve")
	}
	if bytes != 64 {
		t.Errorf("expected redelivery bytes, got %d", bytes)
	}
	if f.queue.Len() != 0 {
		t.Error("expected merged operation removed after redelivery")
	}
}

func TestConflictResolver_MergeWithoutMergerParks(t *testing.T) {
	resolver, f := newResolverFixture(t, nil)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)

	record, _ := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionMerge))

	if record.Resolved {
		t.Error("merge without a merger must not resolve")
	}
	got, _ := f.queue.Get("op-1")
	if !got.ConflictPending {
		t.Error("expected operation parked")
	}
}

func TestConflictResolver_MergeErrorParks(t *testing.T) {
	merger := driven.MergerFunc(func(ctx context.Context, op *domain.Operation, remote json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("fields diverge")
	})
	resolver, f := newResolverFixture(t, merger)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)

	record, _ := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionMerge))

	if record.Resolved {
		t.Error("merge failure must not resolve")
	}
	got, _ := f.queue.Get("op-1")
	if !got.ConflictPending {
		t.Error("expected operation parked")
	}
}

func TestConflictResolver_Manual(t *testing.T) {
	resolver, f := newResolverFixture(t, nil)

	op := makeOp("op-1", "notes", domain.PriorityMedium, time.Now())
	f.queue.Add(op)

	record, _ := resolver.Resolve(context.Background(), conflicted(op), strategyWith(domain.ResolutionManual))

	if record.Resolved {
		t.Error("manual strategy must not auto-resolve")
	}
	if record.Message != "version mismatch" {
		t.Errorf("expected conflict message carried, got %q", record.Message)
	}
	got, _ := f.queue.Get("op-1")
	if !got.ConflictPending {
		t.Error("expected operation parked")
	}
	if f.transport.CallsFor("op-1") != 0 {
		t.Error("manual strategy must not redeliver")
	}
}
