package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom/internal/authz"
)

func receive(t *testing.T, ch <-chan Session) Session {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session change")
		return Session{}
	}
}

func TestProviderLoginLogoutNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(NewMemoryStorage(), zerolog.Nop())

	changes, cancel := provider.Subscribe()
	defer cancel()

	require.NoError(t, provider.Login(ctx, Session{Token: "tok", Username: "Sari", Role: "teacher", UserID: "u1"}))
	got := receive(t, changes)
	require.Equal(t, "tok", got.Token)
	require.True(t, got.Authenticated())
	require.Equal(t, authz.RoleTeacher, got.RoleValue())

	token, err := provider.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok", token)

	require.NoError(t, provider.Logout(ctx))
	got = receive(t, changes)
	require.False(t, got.Authenticated())
	require.Equal(t, Session{}, provider.Current())
}

func TestProviderSubscribeCancelClosesChannel(t *testing.T) {
	provider := NewProvider(NewMemoryStorage(), zerolog.Nop())
	changes, cancel := provider.Subscribe()
	cancel()
	cancel()

	_, ok := <-changes
	require.False(t, ok)
	require.NoError(t, provider.Login(context.Background(), Session{Token: "x"}))
}

func TestProviderSlowSubscriberSeesLatest(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(NewMemoryStorage(), zerolog.Nop())
	changes, cancel := provider.Subscribe()
	defer cancel()

	require.NoError(t, provider.Login(ctx, Session{Token: "first"}))
	require.NoError(t, provider.Login(ctx, Session{Token: "second"}))

	require.Equal(t, "second", receive(t, changes).Token)
}

func TestProviderWatchPropagatesAcrossProvidersInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage := NewMemoryStorage()
	writer := NewProvider(storage, zerolog.Nop())
	reader := NewProvider(storage, zerolog.Nop())

	changes, unsubscribe := reader.Subscribe()
	defer unsubscribe()

	go func() { _ = reader.Watch(ctx) }()
	require.Eventually(t, func() bool {
		storage.mu.Lock()
		defer storage.mu.Unlock()
		return len(storage.listeners) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Login(ctx, Session{Token: "shared", UserID: "u9"}))
	require.Equal(t, "u9", receive(t, changes).UserID)
}

func TestProviderWatchPropagatesThroughRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientA := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	writer := NewProvider(NewRedisStorage(clientA, "test", zerolog.Nop()), zerolog.Nop())
	reader := NewProvider(NewRedisStorage(clientB, "test", zerolog.Nop()), zerolog.Nop())

	changes, unsubscribe := reader.Subscribe()
	defer unsubscribe()

	go func() { _ = reader.Watch(ctx) }()
	require.Eventually(t, func() bool {
		return len(mini.PubSubChannels("test:session:changed")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Login(ctx, Session{Token: "redis-token", Role: "student", UserID: "s1"}))
	got := receive(t, changes)
	require.Equal(t, "redis-token", got.Token)
	require.Equal(t, authz.RoleStudent, got.RoleValue())

	require.NoError(t, writer.Logout(ctx))
	require.False(t, receive(t, changes).Authenticated())
}

func TestProviderWatchRequiresNotifier(t *testing.T) {
	provider := NewProvider(plainStorage{}, zerolog.Nop())
	require.ErrorIs(t, provider.Watch(context.Background()), ErrWatchUnsupported)
}

type plainStorage struct{}

func (plainStorage) Load(context.Context) (map[string]string, error) { return nil, nil }
func (plainStorage) Save(context.Context, map[string]string) error    { return nil }
func (plainStorage) Clear(context.Context) error                      { return nil }
