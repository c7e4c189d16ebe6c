package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

type staticLookup struct {
	ip  string
	err error
}

func (l staticLookup) PublicIP(ctx context.Context) (string, error) { return l.ip, l.err }

func trackerOptions() TrackerOptions {
	return TrackerOptions{HeartbeatInterval: 10 * time.Millisecond, CountInterval: time.Hour, OfflineAfter: 2 * time.Minute}
}

func TestVisitorTracker_Lifecycle(t *testing.T) {
	repo := newMemRepo()
	feed := changefeed.NewLocal()
	defer feed.Close()
	ctx := context.Background()

	tr := NewVisitorTracker(repo, feed, staticLookup{ip: "203.0.113.7"}, SessionContext{Token: "abc"}, trackerOptions(), zap.NewNop())
	tr.Start(ctx)
	assert.Equal(t, "203.0.113.7-abc", tr.VisitorID())

	v, ok := repo.visitor("203.0.113.7-abc")
	require.True(t, ok)
	assert.True(t, v.IsOnline)
	first := v.LastSeen

	assert.Eventually(t, func() bool {
		v, _ := repo.visitor("203.0.113.7-abc")
		return v.LastSeen.After(first)
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return tr.Count() == 1 }, time.Second, 5*time.Millisecond)

	tr.Stop(ctx)
	v, _ = repo.visitor("203.0.113.7-abc")
	assert.False(t, v.IsOnline)
}

func TestVisitorTracker_LookupFailureUsesToken(t *testing.T) {
	repo := newMemRepo()
	tr := NewVisitorTracker(repo, nil, staticLookup{err: errors.New("timeout")}, SessionContext{Token: "abc"}, trackerOptions(), zap.NewNop())
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	assert.Equal(t, "abc", tr.VisitorID())
	_, ok := repo.visitor("abc")
	assert.True(t, ok)
}

func TestVisitorTracker_StoreErrorsAreSwallowed(t *testing.T) {
	repo := newMemRepo()
	repo.setErr(errors.New("store offline"))

	tr := NewVisitorTracker(repo, nil, nil, SessionContext{Token: "abc"}, trackerOptions(), zap.NewNop())
	tr.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, tr.Count())
	tr.Stop(context.Background())
}
