package service_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/dailytoken"
	"github.com/commonshub/hubdoor/internal/hubdoor/service"
	"github.com/commonshub/hubdoor/internal/hubdoor/store/memory"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

const (
	testSecret = "s3cret"
	testGuild  = "guild-1"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

type directory map[string]types.Profile

func (d directory) Member(_ context.Context, id string) (types.Profile, error) {
	p, ok := d[id]
	if !ok {
		return types.Profile{}, service.ErrUnknownPrincipal
	}
	return p, nil
}

type walletStub struct {
	sess *service.WalletSession
	err  error
}

func (w walletStub) Authenticate(context.Context, url.Values) (*service.WalletSession, error) {
	return w.sess, w.err
}

type testDoor struct {
	*service.DoorService
	clock    *clock.FakeClock
	session  *service.Session
	audit    *memory.AuditStore
	notifier *recordingNotifier
	guild    *fakeGuild
	signer   *capability.Signer
	tokens   *dailytoken.Issuer
}

func newTestDoor(t *testing.T, mutate func(*service.Dependencies)) *testDoor {
	t.Helper()

	key, err := crypto.HexToECDSA("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	signer := capability.NewSigner(key)

	c := clock.Fake(t0)
	session := newTestSession(c, nil)
	guild := newFakeGuild(map[string][]string{})
	tokens := dailytoken.NewIssuer(testGuild, testSecret, c, time.UTC)
	td := &testDoor{
		clock:    c,
		session:  session,
		audit:    memory.NewAuditStore(),
		notifier: &recordingNotifier{},
		guild:    guild,
		signer:   signer,
		tokens:   tokens,
	}

	deps := service.Dependencies{
		Session:       session,
		Verifier:      capability.NewVerifier(capability.NewKeyring([]capability.AuthorizedKey{{Name: "Test Host", Address: signer.Address()}}), testSecret),
		Tokens:        tokens,
		Secret:        testSecret,
		Notifier:      td.notifier,
		Directory:     directory{"42": {ID: "42", DisplayName: "Alice", Username: "alice"}},
		Presence:      guild,
		PresentRoleID: "r-present",
		Audit:         td.audit,
		Heartbeat:     memory.NewHeartbeatStore(),
		Logger:        zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	td.DoorService = service.NewDoorService(deps)
	return td
}

func TestOpenWithDayToken_EndToEnd(t *testing.T) {
	d := newTestDoor(t, nil)

	resp, err := d.OpenWithDayToken(context.Background(), d.tokens.Today())
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, types.MethodToken, resp.Method)

	assert.True(t, d.session.IsOpen())
	log := d.session.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "token", log[0].Agent)
	assert.Equal(t, "20260514", log[0].PrincipalID)

	recs := d.audit.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, types.MethodToken, recs[0].Method)
	assert.Equal(t, []string{"🚪 Door opened using today's token"}, d.notifier.msgs)
}

func TestOpenWithDayToken_Rejected(t *testing.T) {
	d := newTestDoor(t, nil)

	yesterday := dailytoken.ForDay(testGuild, t0.Add(-24*time.Hour), testSecret)
	_, err := d.OpenWithDayToken(context.Background(), yesterday)
	require.Error(t, err)
	assert.Equal(t, access.KindUnauthorized, access.KindOf(err))
	assert.ErrorIs(t, err, service.ErrInvalidToken)
	assert.False(t, d.session.IsOpen())
	assert.Empty(t, d.session.Log())
}

func TestTokens_DisabledWithoutSecret(t *testing.T) {
	d := newTestDoor(t, func(deps *service.Dependencies) {
		deps.Tokens = dailytoken.NewIssuer(testGuild, "", clock.Fake(t0), time.UTC)
		deps.Secret = ""
	})
	ctx := context.Background()

	_, err := d.OpenWithDayToken(ctx, dailytoken.ForDay(testGuild, t0, ""))
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = d.OpenWithShortcut(ctx, "42", dailytoken.ForPrincipal(testGuild, "42", ""))
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	assert.False(t, d.session.IsOpen())
	assert.Empty(t, d.session.Log())
}

func TestOpenWithCapability_Grant(t *testing.T) {
	d := newTestDoor(t, nil)

	p, err := d.signer.SignRequest(capability.Request{
		Name: "John Doe", Host: "eventOrganiser", Reason: "Web3 Meetup",
		IssuedAt: t0, StartTime: t0.Add(-5 * time.Minute), Duration: 180 * time.Minute,
		EventURL: "https://lu.ma/web3",
	})
	require.NoError(t, err)

	resp, err := d.OpenWithCapability(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "https://lu.ma/web3", resp.EventURL)

	log := d.session.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "event_eventOrganiser_"+p.Timestamp, log[0].PrincipalID)
	assert.Equal(t, "eventOrganiser (Test Host)", log[0].Agent)
	assert.Equal(t, []string{"🚪 John Doe opened the door for <https://lu.ma/web3> hosted by eventOrganiser"}, d.notifier.msgs)

	rec := d.audit.Records()[0]
	assert.Equal(t, "false", rec.Metadata["secretBypass"])
	assert.Equal(t, "Test Host", rec.Metadata["authorizedKey"])
}

func TestOpenWithCapability_ExpiredReportsWindow(t *testing.T) {
	d := newTestDoor(t, nil)

	start := t0.Add(-5 * time.Hour)
	p, err := d.signer.SignRequest(capability.Request{
		Name: "John Doe", Host: "h", Reason: "r", IssuedAt: start, StartTime: start, Duration: time.Hour,
	})
	require.NoError(t, err)

	_, err = d.OpenWithCapability(context.Background(), p)
	require.ErrorIs(t, err, capability.ErrExpired)
	assert.Equal(t, access.KindUnauthorized, access.KindOf(err))
	assert.False(t, d.session.IsOpen())

	w, ok := d.CapabilityWindow(p)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(start.Add(-30*time.Minute)))
	assert.True(t, w.End.Equal(start.Add(90*time.Minute)))
}

func TestOpenWithShortcut(t *testing.T) {
	d := newTestDoor(t, nil)
	ctx := context.Background()

	_, err := d.OpenWithShortcut(ctx, "42", "nope")
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = d.OpenWithShortcut(ctx, "", "")
	assert.Equal(t, access.KindMalformed, access.KindOf(err))

	_, err = d.OpenWithShortcut(ctx, "99", d.tokens.ForPrincipal("99"))
	assert.ErrorIs(t, err, service.ErrUnknownPrincipal)
	assert.Equal(t, access.KindUnauthorized, access.KindOf(err))

	resp, err := d.OpenWithShortcut(ctx, "42", d.tokens.ForPrincipal("42"))
	require.NoError(t, err)
	assert.Equal(t, "🚪 Door opened by <@42> via shortcut 📲", resp.Message)
	assert.Equal(t, "Alice", d.session.Log()[0].Agent)
	assert.Equal(t, []string{"42"}, d.guild.added)
}

func TestOpenWithShortcut_EnforceSchedule(t *testing.T) {
	d := newTestDoor(t, func(deps *service.Dependencies) { deps.ShortcutEnforceSchedule = true })
	d.session.SetRoster(access.NewRoster([]access.Role{roleDay}, map[string][]string{"r-day": {"42"}}))

	// t0 is 19:00, outside 9-17.
	_, err := d.OpenWithShortcut(context.Background(), "42", d.tokens.ForPrincipal("42"))
	require.ErrorIs(t, err, service.ErrNotAllowedNow)
	assert.Equal(t, access.ReasonNotNow, access.ReasonOf(err))

	d.clock.Set(time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC))
	_, err = d.OpenWithShortcut(context.Background(), "42", d.tokens.ForPrincipal("42"))
	assert.NoError(t, err)
}

func TestOpenWithWallet(t *testing.T) {
	ctx := context.Background()

	d := newTestDoor(t, func(deps *service.Dependencies) { deps.Wallet = walletStub{} })
	_, err := d.OpenWithWallet(ctx, nil)
	assert.ErrorIs(t, err, service.ErrNoWalletSession)

	d = newTestDoor(t, func(deps *service.Dependencies) {
		deps.Wallet = walletStub{sess: &service.WalletSession{Address: "0xAbCdEf0123", Balance: 0}}
	})
	_, err = d.OpenWithWallet(ctx, nil)
	assert.ErrorIs(t, err, service.ErrNoBalance)

	d = newTestDoor(t, func(deps *service.Dependencies) {
		deps.Wallet = walletStub{err: errors.New("rpc down")}
	})
	_, err = d.OpenWithWallet(ctx, nil)
	assert.Equal(t, access.KindUnauthorized, access.KindOf(err))
	assert.ErrorIs(t, err, service.ErrNoBalance)
	assert.False(t, d.session.IsOpen())

	d = newTestDoor(t, func(deps *service.Dependencies) {
		deps.Wallet = walletStub{sess: &service.WalletSession{Address: "0xAbCdEf0123", Balance: 12.5}}
	})
	resp, err := d.OpenWithWallet(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown", d.session.Log()[0].Agent)
	assert.Equal(t, "0xAbCdEf0123", d.session.Log()[0].PrincipalID)
	require.Len(t, resp.Visitors, 1)
	assert.Equal(t, "0xAbCdEf", resp.Visitors[0].DisplayName)
}

func TestOpenWithChat(t *testing.T) {
	d := newTestDoor(t, nil)
	d.session.SetRoster(access.NewRoster(
		[]access.Role{roleDay, roleMember},
		map[string][]string{"r-day": {"day", "both"}, "r-member": {"both"}},
	))
	ctx := context.Background()
	alice := func(id string) service.ChatRequest {
		return service.ChatRequest{Profile: types.Profile{ID: id, DisplayName: "Alice"}, Agent: "door#0001"}
	}

	reply := d.OpenWithChat(ctx, alice("nobody"))
	assert.False(t, reply.Granted)
	assert.Contains(t, reply.Message, "Become a member")

	reply = d.OpenWithChat(ctx, alice("day"))
	assert.False(t, reply.Granted)
	assert.Equal(t, "No access at this time. Day pass holders between 9 and 17.", reply.Message)

	reply = d.OpenWithChat(ctx, alice("both"))
	require.True(t, reply.Granted)
	assert.Equal(t, "Good evening Alice! 🌙 (Members can come anytime)", reply.Message)
	assert.Equal(t, "door#0001", d.session.Log()[0].Agent)
	assert.Equal(t, []string{"both"}, d.guild.added)
}

func TestOpenWithChat_AppendsFunFact(t *testing.T) {
	ff := service.NewFunFacts(&factList{facts: []service.Fact{{Text: "bees dance", CreatedAt: t0}}},
		clock.Fake(t0), service.FunFactsConfig{}, zap.NewNop())
	require.NoError(t, ff.Load(context.Background()))

	d := newTestDoor(t, func(deps *service.Dependencies) { deps.FunFacts = ff })
	d.session.SetRoster(access.NewRoster([]access.Role{roleMember}, map[string][]string{"r-member": {"1"}}))

	reply := d.OpenWithChat(context.Background(), service.ChatRequest{Profile: types.Profile{ID: "1", DisplayName: "A"}})
	assert.True(t, strings.HasSuffix(reply.Message, "\n**Fun fact**: bees dance"))
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Good morning early bird! 🐣", service.Greeting(8, "x"))
	assert.Equal(t, "Good morning x! ☀️", service.Greeting(9, "x"))
	assert.Equal(t, "Good afternoon x! 🌞", service.Greeting(12, "x"))
	assert.Equal(t, "Good evening x! 🌙", service.Greeting(18, "x"))
}

func TestDayToken(t *testing.T) {
	d := newTestDoor(t, nil)

	tok, err := d.DayToken(testSecret)
	require.NoError(t, err)
	assert.Equal(t, dailytoken.ForDay(testGuild, t0, testSecret), tok)

	_, err = d.DayToken("wrong")
	assert.ErrorIs(t, err, service.ErrInvalidSecret)

	noSecret := newTestDoor(t, func(deps *service.Dependencies) { deps.Secret = "" })
	_, err = noSecret.DayToken("")
	assert.ErrorIs(t, err, service.ErrInvalidSecret)
}

func TestCheckAndStatus(t *testing.T) {
	d := newTestDoor(t, nil)
	ctx := context.Background()

	assert.False(t, d.Check(ctx, "10.0.0.2", "esp32"))
	d.clock.Advance(10 * time.Second)
	d.session.Open("x", "y")
	assert.True(t, d.Check(ctx, "10.0.0.3", "shelly"))

	status, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shelly online", status["10.0.0.3"])
	assert.Equal(t, "Offline since 14/05/2026, 19:00:00 (10s ago)", status["10.0.0.2"])
}

func TestNotifyFailureDoesNotBlockOpen(t *testing.T) {
	d := newTestDoor(t, nil)
	d.notifier.err = errors.New("discord down")

	_, err := d.OpenWithDayToken(context.Background(), d.tokens.Today())
	require.NoError(t, err)
	assert.True(t, d.session.IsOpen())
}

func TestHome(t *testing.T) {
	d := newTestDoor(t, nil)
	for i := 0; i < 60; i++ {
		d.session.Open("p", "token")
	}
	home := d.Home()
	assert.Len(t, home.DoorLog, 50)
	assert.Len(t, home.Today, 1)
}
