package notifications

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resolver computes the deduplicated audience of an event from three
// independent relations: going, category preference and community membership.
type Resolver struct {
	source  Source
	timeout time.Duration
}

// NewResolver returns a Resolver. A zero timeout uses the default.
func NewResolver(source Source, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Resolver{source: source, timeout: timeout}
}

// Resolve returns every user who should hear about ev, each exactly once.
// Output order is: going users, then category subscribers, then community
// members, each in source order, with later duplicates folded into the
// first occurrence. Any lookup failure fails the whole resolution so that a
// partial audience is never dispatched.
func (r *Resolver) Resolve(ctx context.Context, ev Event) ([]Recipient, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var going, category, community []User
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		users, err := r.source.GoingUsers(gctx, ev.ID)
		if err != nil {
			return fmt.Errorf("going users: %w", err)
		}
		going = users
		return nil
	})
	g.Go(func() error {
		users, err := r.source.CategorySubscribers(gctx, ev.Category)
		if err != nil {
			return fmt.Errorf("category subscribers: %w", err)
		}
		category = users
		return nil
	})
	// No community: that relation contributes nothing.
	if ev.CommunityID != nil {
		communityID := *ev.CommunityID
		g.Go(func() error {
			users, err := r.source.CommunityMembers(gctx, communityID)
			if err != nil {
				return fmt.Errorf("community members: %w", err)
			}
			community = users
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve audience for event %d: %w", ev.ID, err)
	}
	return mergeAudience(
		sourceUsers{ReasonGoing, going},
		sourceUsers{ReasonCategory, category},
		sourceUsers{ReasonCommunity, community},
	), nil
}

type sourceUsers struct {
	reason Reason
	users  []User
}

// mergeAudience unions the sources keyed by user id. The first row seen for
// a user supplies its token; a later non-empty token fills an empty one.
func mergeAudience(sources ...sourceUsers) []Recipient {
	total := 0
	for _, s := range sources {
		total += len(s.users)
	}

	index := make(map[string]int, total)
	out := make([]Recipient, 0, total)
	for _, s := range sources {
		for _, u := range s.users {
			if i, ok := index[u.ID]; ok {
				out[i].Reasons |= s.reason
				if out[i].PushToken == "" {
					out[i].PushToken = u.PushToken
				}
				continue
			}
			index[u.ID] = len(out)
			out = append(out, Recipient{User: u, Reasons: s.reason})
		}
	}
	return out
}
