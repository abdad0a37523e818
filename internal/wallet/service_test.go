package wallet

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/remittance/internal/audit"
	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/notification"
)

type fixture struct {
	svc      *Service
	store    Store
	provider *fakeProvider
	notifier *recordingNotifier
	events   *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		provider: &fakeProvider{token: "tok-1", card: "card-12345"},
		notifier: &recordingNotifier{},
		events:   audit.NewMemoryLog(),
	}
	f.svc = NewService(Config{
		ProviderName: "uphold",
		Links:        LinkConfig{WebURL: "https://wallet.example.com", ClientID: "client-1"},
	}, f.store, f.provider, f.notifier, f.events, logging.Discard(), nil)
	return f
}

func (f *fixture) seed(t *testing.T, status Status) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), &Record{
		Provider:      "uphold",
		Status:        status,
		Token:         "tok-1",
		Address:       "card-12345",
		OneTimeString: "state-1",
		Fees:          map[string]decimal.Decimal{"c-1": decimal.NewFromInt(5)},
	}))
}

func (f *fixture) current(t *testing.T) *Record {
	t.Helper()
	record, err := f.store.Get(context.Background())
	require.NoError(t, err)
	return record
}

func TestGenerateCreatesRecord(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotConnected, record.Status)
	assert.Equal(t, "uphold", record.Provider)
	assert.NotEmpty(t, record.OneTimeString)
	assert.Contains(t, record.Links.Login, "state="+record.OneTimeString)
	assert.Zero(t, f.provider.Calls("GetCapabilities"))
}

func TestGenerateDisconnectsVerifiedWalletWithoutCapabilities(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)
	f.provider.caps = Capabilities{CanReceive: true, CanSend: false}

	record, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnectedVerified, record.Status)

	shown, ok := f.notifier.Find("show")
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientCapabilities, shown.code)
}

func TestAuthorizeVerifiesWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.user = ProviderUser{Name: "Ada", MemberID: "m-1", Verified: true}

	created, err := f.svc.Generate(ctx)
	require.NoError(t, err)

	record, err := f.svc.Authorize(ctx, AuthorizeArgs{Code: "code-1", State: created.OneTimeString})
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, record.Status)
	assert.Equal(t, "tok-1", record.Token)
	assert.Equal(t, "card-12345", record.Address)
	assert.Equal(t, "Ada", record.UserName)
	assert.NotEqual(t, created.OneTimeString, record.OneTimeString)
	assert.NotEmpty(t, record.Links.Add)

	entries := f.events.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.KeyWalletVerified, entries[0].Key)
	assert.Equal(t, "uphold/card-", entries[0].Value)
	assert.Equal(t, []string{"status", "status"}, f.notifier.Kinds())
}

func TestAuthorizeRejectsBadState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Generate(ctx)
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, AuthorizeArgs{Code: "code-1", State: "forged"})
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Zero(t, f.provider.Calls("ExchangeCode"))
}

func TestAuthorizeProviderError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Generate(ctx)
	require.NoError(t, err)

	_, err = f.svc.Authorize(ctx, AuthorizeArgs{State: created.OneTimeString, Error: "access_denied"})
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.Equal(t, StatusNotConnected, f.current(t).Status)
}

func TestAuthorizeUnverifiedUserStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.user = ProviderUser{Verified: false}
	created, err := f.svc.Generate(ctx)
	require.NoError(t, err)

	record, err := f.svc.Authorize(ctx, AuthorizeArgs{Code: "code-1", State: created.OneTimeString})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Zero(t, f.provider.Calls("EnsureCard"))
}

func TestVerifyBlockedUserDisconnects(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusPending)
	f.provider.user = ProviderUser{Blocked: true}

	err := f.svc.Verify(context.Background())
	assert.ErrorIs(t, err, ErrUserBlocked)
	assert.Equal(t, StatusDisconnectedOther, f.current(t).Status)

	shown, ok := f.notifier.Find("show")
	require.True(t, ok)
	assert.Equal(t, notification.CodeBlockedUser, shown.code)
}

func TestManualDisconnect(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)

	require.NoError(t, f.svc.Disconnect(context.Background()))

	record := f.current(t)
	assert.Equal(t, StatusNotConnected, record.Status)
	assert.Equal(t, "uphold", record.Provider)
	assert.Empty(t, record.Token)
	assert.Empty(t, record.Address)
	assert.Empty(t, record.Fees)
	assert.NotEqual(t, "state-1", record.OneTimeString)

	_, shown := f.notifier.Find("show")
	assert.False(t, shown, "manual disconnect must not show a notification")
	_, disconnected := f.notifier.Find("disconnected")
	assert.True(t, disconnected)

	entries := f.events.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.KeyWalletDisconnected, entries[0].Key)
	assert.Equal(t, "uphold/card-", entries[0].Value)
}

func TestSystemDisconnectKeepsTrace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)

	require.NoError(t, f.svc.DisconnectWithReason(context.Background(), notification.CodeWalletDisconnected))

	assert.Equal(t, StatusDisconnectedVerified, f.current(t).Status)
	shown, ok := f.notifier.Find("show")
	require.True(t, ok)
	assert.Equal(t, notification.CodeWalletDisconnected, shown.code)
	assert.Equal(t, []string{"uphold"}, shown.args)

	status, ok := f.notifier.Find("status")
	require.True(t, ok)
	assert.Equal(t, "VERIFIED", status.from)
	assert.Equal(t, "DISCONNECTED_VERIFIED", status.to)
}

func TestDisconnectDuringShutdownIsSilent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusPending)
	f.svc.BeginShutdown()

	require.NoError(t, f.svc.DisconnectWithReason(context.Background(), notification.CodeWalletDisconnected))

	assert.Equal(t, StatusDisconnectedOther, f.current(t).Status)
	assert.Equal(t, []string{"status"}, f.notifier.Kinds())
	assert.Len(t, f.events.Entries(), 1)
}

func TestDisconnectAbsentWalletIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Disconnect(context.Background()))
	assert.Empty(t, f.notifier.Kinds())
	assert.Empty(t, f.events.Entries())
}

func TestDisconnectWithoutAddressAuditsProviderOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), &Record{Provider: "uphold", Status: StatusPending, Token: "tok"}))

	require.NoError(t, f.svc.Disconnect(context.Background()))
	entries := f.events.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "uphold", entries[0].Value)
}

func TestFetchBalanceSkipsProviderUnlessVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	balance, err := f.svc.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	f.seed(t, StatusPending)
	balance, err = f.svc.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Zero(t, f.provider.Calls("GetCardBalance"))
}

func TestFetchBalanceVerified(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)
	f.provider.balance = decimal.RequireFromString("12.5")

	balance, err := f.svc.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("12.5")))
}

func TestFetchBalanceExpiredCredentialDisconnects(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)
	f.provider.balanceErr = ErrExpiredCredential

	_, err := f.svc.FetchBalance(context.Background())
	assert.ErrorIs(t, err, ErrExpiredCredential)

	record := f.current(t)
	assert.Equal(t, StatusDisconnectedVerified, record.Status)
	assert.Empty(t, record.Fees)
}

func TestFetchBalanceStatusChangedDuringCall(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusVerified)
	f.provider.balance = decimal.NewFromInt(3)
	f.provider.duringBalance = func() {
		_ = f.svc.Disconnect(context.Background())
	}

	_, err := f.svc.FetchBalance(context.Background())
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestGetCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetCapabilities(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.store.Set(ctx, &Record{Provider: "uphold", Status: StatusNotConnected}))
	caps, err := f.svc.GetCapabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, Capabilities{}, caps)
	assert.Zero(t, f.provider.Calls("GetCapabilities"))

	f.seed(t, StatusPending)
	f.provider.caps = Capabilities{CanReceive: true, CanSend: true}
	caps, err = f.svc.GetCapabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.CanSend)
}

func TestRequireVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RequireVerified(ctx), ErrNotFound)

	f.seed(t, StatusPending)
	err := f.svc.RequireVerified(ctx)
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.True(t, strings.Contains(err.Error(), "PENDING"))

	f.seed(t, StatusVerified)
	assert.NoError(t, f.svc.RequireVerified(ctx))
}
