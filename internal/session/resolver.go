package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/internportal/internal/models"
	"golang.org/x/sync/singleflight"
)

// ProfileFetcher loads the profile of the caller authenticated by the current session.
type ProfileFetcher interface {
	Me(ctx context.Context) (*models.CurrentUser, error)
}

// Resolver populates the CurrentUser of a State from the profile endpoint.
type Resolver struct {
	state   *State
	fetcher ProfileFetcher
	group   singleflight.Group
}

// NewResolver creates a resolver for state.
func NewResolver(state *State, fetcher ProfileFetcher) *Resolver {
	return &Resolver{
		state:   state,
		fetcher: fetcher,
	}
}

// Resolve makes sure the current session has a profile attached.
//
// Concurrent callers share a single profile request. When the request fails the
// loading flag is cleared and the returned snapshot has no user, so an access
// check on it redirects to login rather than rendering. A caller whose ctx ends
// stops waiting, but the shared request keeps running for the others; its
// duration is bounded by the fetcher's own timeout.
func (r *Resolver) Resolve(ctx context.Context) (Snapshot, error) {
	snap := r.state.Current()
	if snap.Session == nil || snap.User != nil {
		return snap, nil
	}

	sess := snap.Session
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(sess.AccessToken, func() (any, error) {
		r.state.BeginLoading(sess)

		user, err := r.fetcher.Me(fetchCtx)
		if err != nil {
			r.state.EndLoading(sess)
			return nil, err
		}

		r.state.SetUser(sess, user)
		return user, nil
	})

	select {
	case <-ctx.Done():
		return r.state.Current(), fmt.Errorf("resolve profile: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			zerolog.Ctx(ctx).Warn().Err(res.Err).Bool("shared", res.Shared).Msg("profile resolution failed")
			return r.state.Current(), fmt.Errorf("resolve profile: %w", res.Err)
		}
	}

	return r.state.Current(), nil
}
