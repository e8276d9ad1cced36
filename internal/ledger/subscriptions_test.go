package ledger

import (
	"context"
	"testing"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
)

func TestSubscribeFilterDelivery(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	var all, classifyOnly, entityScoped []entry.Entry
	l.Subscribe(func(e entry.Entry) { all = append(all, e) }, nil)
	l.Subscribe(func(e entry.Entry) { classifyOnly = append(classifyOnly, e) },
		&SubscriptionFilter{Types: []entry.Type{"classify:entity:updated"}})
	l.Subscribe(func(e entry.Entry) { entityScoped = append(entityScoped, e) },
		&SubscriptionFilter{EntityIDs: []string{"fn:parse"}})

	if _, err := l.Append(ctx, entry.Entry{
		Type:             "classify:entity:updated",
		ImpactedEntities: []string{"fn:render"},
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := l.Append(ctx, entry.Entry{
		Type:             "index:file:modified",
		ImpactedEntities: []string{"fn:parse"},
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d entries, want 2", len(all))
	}
	if len(classifyOnly) != 1 || classifyOnly[0].Type != "classify:entity:updated" {
		t.Fatalf("type-filtered subscriber got %+v, want one classify entry", classifyOnly)
	}
	if len(entityScoped) != 1 || entityScoped[0].Type != "index:file:modified" {
		t.Fatalf("entity-filtered subscriber got %+v, want one index entry", entityScoped)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	var seen int
	unsubscribe := l.Subscribe(func(entry.Entry) { seen++ }, nil)

	if _, err := l.Append(ctx, entry.Entry{Type: "user:feedback:submitted"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	unsubscribe()
	if _, err := l.Append(ctx, entry.Entry{Type: "user:feedback:submitted"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if seen != 1 {
		t.Fatalf("subscriber saw %d entries, want 1 (unsubscribed before second)", seen)
	}
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	var after int
	l.Subscribe(func(entry.Entry) { panic("subscriber bug") }, nil)
	l.Subscribe(func(entry.Entry) { after++ }, nil)

	if _, err := l.Append(ctx, entry.Entry{Type: "system:error"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if after != 1 {
		t.Fatalf("later subscriber saw %d entries, want 1 despite earlier panic", after)
	}
}

func TestSubscribeCorrelationFilter(t *testing.T) {
	l := newTestLedger(t, nil, Config{})
	ctx := context.Background()

	var correlated []entry.Entry
	l.Subscribe(func(e entry.Entry) { correlated = append(correlated, e) },
		&SubscriptionFilter{CorrelationID: "req-7"})

	if _, err := l.Append(ctx, entry.Entry{Type: "mcp:query:completed", CorrelationID: "req-7"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := l.Append(ctx, entry.Entry{Type: "mcp:query:completed", CorrelationID: "req-8"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(correlated) != 1 || correlated[0].CorrelationID != "req-7" {
		t.Fatalf("correlation-filtered subscriber got %+v, want only req-7", correlated)
	}
}
