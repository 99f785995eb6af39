package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }

func testEvent(id int64, name, category string, start time.Time, community *int64) Event {
	return Event{
		ID:          id,
		Name:        name,
		Category:    category,
		StartTime:   start,
		EndTime:     start.Add(2 * time.Hour),
		CommunityID: community,
		Active:      true,
	}
}

// fakeSource is an in-memory Source. UpcomingEvents returns every event
// unfiltered so the Scanner's own filtering is exercised.
type fakeSource struct {
	mu         sync.Mutex
	events     []Event
	going      map[int64][]User
	categories map[string][]User
	community  map[int64][]User

	scanErr      error
	goingErr     error
	communityHit int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		going:      make(map[int64][]User),
		categories: make(map[string][]User),
		community:  make(map[int64][]User),
	}
}

func (f *fakeSource) UpcomingEvents(_ context.Context, _, _ time.Time) ([]Event, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeSource) EventByID(_ context.Context, id int64) (*Event, error) {
	for _, e := range f.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (f *fakeSource) GoingUsers(_ context.Context, eventID int64) ([]User, error) {
	if f.goingErr != nil {
		return nil, f.goingErr
	}
	return f.going[eventID], nil
}

func (f *fakeSource) CategorySubscribers(_ context.Context, category string) ([]User, error) {
	return f.categories[category], nil
}

func (f *fakeSource) CommunityMembers(_ context.Context, communityID int64) ([]User, error) {
	f.mu.Lock()
	f.communityHit++
	f.mu.Unlock()
	return f.community[communityID], nil
}

// fakeSender records every multicast. Events listed in block wait for the
// context to expire; events listed in fail return failErr; events listed in
// panics panic.
type fakeSender struct {
	mu      sync.Mutex
	sent    []Multicast
	block   map[string]bool
	fail    map[string]bool
	panics  map[string]bool
	failErr error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		block:   make(map[string]bool),
		fail:    make(map[string]bool),
		panics:  make(map[string]bool),
		failErr: errors.New("gateway unavailable"),
	}
}

func (f *fakeSender) SendMulticast(ctx context.Context, msg Multicast) (*BatchReport, error) {
	id := msg.Data["eventId"]
	switch {
	case f.panics[id]:
		panic("sender exploded")
	case f.block[id]:
		<-ctx.Done()
		return nil, ctx.Err()
	case f.fail[id]:
		return nil, f.failErr
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return &BatchReport{SuccessCount: len(msg.Tokens)}, nil
}

func (f *fakeSender) calls() []Multicast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Multicast, len(f.sent))
	copy(out, f.sent)
	return out
}
