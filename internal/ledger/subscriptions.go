package ledger

import (
	"log"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
)

// SubscriptionFilter narrows which appended entries a subscriber receives.
// A nil filter matches everything. Within a filter every set field must
// match; list fields match on any overlap.
type SubscriptionFilter struct {
	Types         []entry.Type
	Sources       []entry.Source
	EntityIDs     []string
	FilePaths     []string
	CorrelationID string
}

type subscriber struct {
	id       int
	filter   *SubscriptionFilter
	callback func(entry.Entry)
}

// Subscribe registers a callback for future appends and returns an
// unsubscribe function. There is no replay of past entries.
//
// Callbacks run synchronously on the appending goroutine; a panicking
// callback is recovered and logged, never propagated.
func (l *Ledger) Subscribe(callback func(entry.Entry), filter *SubscriptionFilter) func() {
	if l == nil || callback == nil {
		return func() {}
	}

	l.mu.Lock()
	subID := l.nextSub
	l.nextSub++
	l.subs[subID] = &subscriber{id: subID, filter: filter, callback: callback}
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, subID)
		l.mu.Unlock()
	}
}

// matchingSubscribersLocked snapshots the subscribers whose filters match e.
// Caller must hold l.mu.
func (l *Ledger) matchingSubscribersLocked(e entry.Entry) []*subscriber {
	if len(l.subs) == 0 {
		return nil
	}
	matched := make([]*subscriber, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.filter.matches(e) {
			matched = append(matched, sub)
		}
	}
	return matched
}

func notify(sub *subscriber, e entry.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ledger subscriber %d panicked: %v", sub.id, r)
		}
	}()
	sub.callback(e)
}

func (f *SubscriptionFilter) matches(e entry.Entry) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Sources) > 0 && !containsSource(f.Sources, e.Source) {
		return false
	}
	if len(f.EntityIDs) > 0 && !anyOverlap(f.EntityIDs, e.ImpactedEntities) {
		return false
	}
	if len(f.FilePaths) > 0 && !anyOverlap(f.FilePaths, e.ImpactedFiles) {
		return false
	}
	if f.CorrelationID != "" && f.CorrelationID != e.CorrelationID {
		return false
	}
	return true
}

func containsType(values []entry.Type, v entry.Type) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func containsSource(values []entry.Source, v entry.Source) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
