package authenticationhandler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/apierrors"
	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/credentialstore"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher counts exchanges and optionally blocks each one until release is closed.
type fakeRefresher struct {
	calls   atomic.Int32
	started chan string
	release chan struct{}

	mu     sync.Mutex
	result credentials.Bundle
	err    error
}

func newFakeRefresher(result credentials.Bundle, err error) *fakeRefresher {
	return &fakeRefresher{result: result, err: err, started: make(chan string, 16)}
}

func (f *fakeRefresher) blocking() *fakeRefresher {
	f.release = make(chan struct{})
	return f
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Bundle, error) {
	f.calls.Add(1)
	f.started <- refreshToken
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return credentials.Bundle{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// failingStore wraps a MemoryStore and fails selected operations.
type failingStore struct {
	*credentialstore.MemoryStore
	loadErr error
	saveErr error
}

func (s *failingStore) Load(ctx context.Context) (*credentials.Bundle, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx)
}

func (s *failingStore) Save(ctx context.Context, b credentials.Bundle) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, b)
}

func expiredBundle() credentials.Bundle {
	return credentials.NewBundle("a1", "r1", epoch.Add(-time.Minute))
}

func validBundle() credentials.Bundle {
	return credentials.NewBundle("a1", "r1", epoch.Add(time.Hour))
}

func refreshedBundle() credentials.Bundle {
	return credentials.NewBundle("a2", "r2", epoch.Add(2*time.Hour))
}

func seededStore(t *testing.T, b *credentials.Bundle) *credentialstore.MemoryStore {
	t.Helper()
	store := credentialstore.NewMemoryStore()
	if b != nil {
		require.NoError(t, store.Save(context.Background(), *b))
	}
	return store
}

func newCoordinator(t *testing.T, store credentialstore.Store, refresher Refresher, clock clockwork.Clock) *TokenCoordinator {
	t.Helper()
	c, err := NewTokenCoordinator(context.Background(), CoordinatorConfig{
		Store:     store,
		Refresher: refresher,
		Clock:     clock,
	})
	require.NoError(t, err)
	return c
}

func TestNewTokenCoordinatorRequiresCollaborators(t *testing.T) {
	_, err := NewTokenCoordinator(context.Background(), CoordinatorConfig{Refresher: newFakeRefresher(credentials.Bundle{}, nil)})
	assert.ErrorIs(t, err, errMissingStore)

	_, err = NewTokenCoordinator(context.Background(), CoordinatorConfig{Store: credentialstore.NewMemoryStore()})
	assert.ErrorIs(t, err, errMissingRefresher)
}

func TestValidBundleWithoutStoredCredentials(t *testing.T) {
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, seededStore(t, nil), refresher, clockwork.NewFakeClockAt(epoch))

	_, err := c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCredentials)
	assert.True(t, apierrors.RequiresReauthentication(err))
	assert.Equal(t, int32(0), refresher.calls.Load(), "no exchange without a bundle")

	_, err = c.ForceRefresh(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCredentials)
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestValidBundleReturnsFreshBundleWithoutNetwork(t *testing.T) {
	b := validBundle()
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Equal(got))
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestValidBundleRefreshesExpiredBundleOnce(t *testing.T) {
	b := expiredBundle()
	store := seededStore(t, &b)
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, store, refresher, clockwork.NewFakeClockAt(epoch))

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshedBundle().Equal(got))
	assert.Equal(t, "r1", <-refresher.started, "exchange uses the stored refresh token")

	// The refreshed bundle is now fresh, so a second call does not exchange again.
	_, err = c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), refresher.calls.Load())

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, refreshedBundle().Equal(*persisted))
}

func TestBundleExpiringExactlyNowIsStale(t *testing.T) {
	b := credentials.NewBundle("a1", "r1", epoch)
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	_, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	const callers = 50
	b := expiredBundle()
	refresher := newFakeRefresher(refreshedBundle(), nil).blocking()
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	results := make([]credentials.Bundle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.ValidBundle(context.Background())
		}(i)
	}

	<-refresher.started
	time.Sleep(50 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load(), "exactly one exchange")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, refreshedBundle().Equal(results[i]))
	}
}

func TestConcurrentForceRefreshSharesFailure(t *testing.T) {
	const callers = 20
	b := expiredBundle()
	rejection := &apierrors.InvalidCredentialsError{StatusCode: 400, Message: "invalid_grant"}
	refresher := newFakeRefresher(credentials.Bundle{}, rejection).blocking()
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	first := make(chan error, 1)
	go func() {
		_, err := c.ForceRefresh(context.Background())
		first <- err
	}()
	<-refresher.started

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ForceRefresh(context.Background())
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(refresher.release)
	wg.Wait()
	close(errs)

	assert.ErrorIs(t, <-first, apierrors.ErrInvalidCredentials)
	for err := range errs {
		assert.ErrorIs(t, err, apierrors.ErrInvalidCredentials)
		var invalid *apierrors.InvalidCredentialsError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 400, invalid.StatusCode)
	}
	assert.Equal(t, int32(1), refresher.calls.Load())

	current, ok := c.Current()
	require.True(t, ok, "stale bundle is kept after a failed refresh")
	assert.True(t, b.Equal(current))
}

func TestFailedRefreshCanBeRetried(t *testing.T) {
	b := expiredBundle()
	refresher := newFakeRefresher(credentials.Bundle{}, &apierrors.TransportError{Method: "POST", URL: "x", Err: context.DeadlineExceeded})
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	_, err := c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrTransport)

	refresher.mu.Lock()
	refresher.result, refresher.err = refreshedBundle(), nil
	refresher.mu.Unlock()

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshedBundle().Equal(got))
	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	b := expiredBundle()
	refresher := newFakeRefresher(credentials.NewBundle("a2", "", epoch.Add(time.Hour)), nil)
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	got, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
}

func TestClearThenValidBundle(t *testing.T) {
	b := validBundle()
	store := seededStore(t, &b)
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, store, refresher, clockwork.NewFakeClockAt(epoch))

	require.NoError(t, c.Clear(context.Background()))
	require.NoError(t, c.Clear(context.Background()), "clear is idempotent")

	_, err := c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCredentials)
	assert.Equal(t, int32(0), refresher.calls.Load())

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestClearDuringRefreshDiscardsResult(t *testing.T) {
	b := expiredBundle()
	store := seededStore(t, &b)
	refresher := newFakeRefresher(refreshedBundle(), nil).blocking()
	c := newCoordinator(t, store, refresher, clockwork.NewFakeClockAt(epoch))

	done := make(chan error, 1)
	go func() {
		_, err := c.ValidBundle(context.Background())
		done <- err
	}()
	<-refresher.started

	require.NoError(t, c.Clear(context.Background()))
	close(refresher.release)

	assert.ErrorIs(t, <-done, apierrors.ErrNoCredentials)
	_, ok := c.Current()
	assert.False(t, ok)
	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, persisted, "discarded bundle must not be persisted")
}

func TestSetBundleDuringRefreshWins(t *testing.T) {
	b := expiredBundle()
	store := seededStore(t, &b)
	refresher := newFakeRefresher(refreshedBundle(), nil).blocking()
	c := newCoordinator(t, store, refresher, clockwork.NewFakeClockAt(epoch))

	type result struct {
		bundle credentials.Bundle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		got, err := c.ValidBundle(context.Background())
		done <- result{got, err}
	}()
	<-refresher.started

	login := credentials.NewBundle("a9", "r9", epoch.Add(time.Hour))
	require.NoError(t, c.SetBundle(context.Background(), login))
	close(refresher.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "a9", res.bundle.AccessToken)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "r9", persisted.RefreshToken)
}

func TestCallerCancellationDoesNotCancelSharedRefresh(t *testing.T) {
	b := expiredBundle()
	refresher := newFakeRefresher(refreshedBundle(), nil).blocking()
	c := newCoordinator(t, seededStore(t, &b), refresher, clockwork.NewFakeClockAt(epoch))

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := c.ValidBundle(ctx)
		cancelled <- err
	}()
	<-refresher.started

	other := make(chan error, 1)
	go func() {
		_, err := c.ValidBundle(context.Background())
		other <- err
	}()

	cancel()
	assert.ErrorIs(t, <-cancelled, context.Canceled)

	close(refresher.release)
	require.NoError(t, <-other)

	current, ok := c.Current()
	require.True(t, ok)
	assert.True(t, refreshedBundle().Equal(current))
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestRefreshTimeoutBoundsExchange(t *testing.T) {
	b := expiredBundle()
	refresher := newFakeRefresher(refreshedBundle(), nil).blocking()
	c, err := NewTokenCoordinator(context.Background(), CoordinatorConfig{
		Store:          seededStore(t, &b),
		Refresher:      refresher,
		Clock:          clockwork.NewFakeClockAt(epoch),
		RefreshTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.mu.Lock()
	assert.False(t, c.refreshing, "flight handle is released after a timeout")
	c.mu.Unlock()
}

func TestStoreSaveFailureStillInstallsBundle(t *testing.T) {
	b := expiredBundle()
	store := &failingStore{MemoryStore: seededStore(t, &b), saveErr: errors.New("disk full")}
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, store, refresher, clockwork.NewFakeClockAt(epoch))

	_, err := c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrCredentialStore)

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshedBundle().Equal(got))
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestUnreadableStoreStartsEmpty(t *testing.T) {
	store := &failingStore{MemoryStore: credentialstore.NewMemoryStore(), loadErr: errors.New("corrupt")}
	c := newCoordinator(t, store, newFakeRefresher(refreshedBundle(), nil), clockwork.NewFakeClockAt(epoch))

	_, err := c.ValidBundle(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrNoCredentials)
}

func TestRefreshBufferPeriod(t *testing.T) {
	b := credentials.NewBundle("a1", "r1", epoch.Add(30*time.Second))
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c, err := NewTokenCoordinator(context.Background(), CoordinatorConfig{
		Store:                    seededStore(t, &b),
		Refresher:                refresher,
		Clock:                    clockwork.NewFakeClockAt(epoch),
		TokenRefreshBufferPeriod: time.Minute,
	})
	require.NoError(t, err)

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
}

func TestExpiryFollowsClock(t *testing.T) {
	b := validBundle()
	clock := clockwork.NewFakeClockAt(epoch)
	refresher := newFakeRefresher(refreshedBundle(), nil)
	c := newCoordinator(t, seededStore(t, &b), refresher, clock)

	_, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), refresher.calls.Load())

	clock.Advance(time.Hour)
	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestSetBundle(t *testing.T) {
	store := seededStore(t, nil)
	c := newCoordinator(t, store, newFakeRefresher(refreshedBundle(), nil), clockwork.NewFakeClockAt(epoch))

	assert.ErrorIs(t, c.SetBundle(context.Background(), credentials.Bundle{AccessToken: "a"}), credentials.ErrMissingRefreshToken)
	require.NoError(t, c.SetBundle(context.Background(), validBundle()))

	got, err := c.ValidBundle(context.Background())
	require.NoError(t, err)
	assert.True(t, validBundle().Equal(got))

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, validBundle().Equal(*persisted))
}
