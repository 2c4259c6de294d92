package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/httpapi"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/dailytoken"
	"github.com/commonshub/hubdoor/internal/hubdoor/service"
	"github.com/commonshub/hubdoor/internal/hubdoor/store/memory"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
	"github.com/commonshub/hubdoor/internal/metrics"
)

const (
	secret = "s3cret"
	guild  = "guild-1"
)

var now = time.Date(2026, 5, 14, 19, 0, 0, 0, time.UTC)

type testEnv struct {
	ts      *httptest.Server
	clock   *clock.FakeClock
	session *service.Session
	tokens  *dailytoken.Issuer
	signer  *capability.Signer
}

// newTestServer wires the full dependency graph on in-memory stores and a
// fake clock.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	key, err := crypto.HexToECDSA("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	signer := capability.NewSigner(key)
	keys := capability.NewKeyring(nil)
	keys.Ensure(capability.ServerKey(signer))

	c := clock.Fake(now)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	session := service.NewSession(service.SessionConfig{Clock: c, Location: time.UTC, OnChange: m.SetDoorOpen})
	tokens := dailytoken.NewIssuer(guild, secret, c, time.UTC)

	door := service.NewDoorService(service.Dependencies{
		Session:   session,
		Verifier:  capability.NewVerifier(keys, secret),
		Tokens:    tokens,
		Secret:    secret,
		Audit:     memory.NewAuditStore(),
		Heartbeat: memory.NewHeartbeatStore(),
		Metrics:   m,
		Logger:    zap.NewNop(),
	})

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  zap.NewNop(),
		Addr:    ":0",
		Door:    door,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, clock: c, session: session, tokens: tokens, signer: signer}
}

func get(t *testing.T, u string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, u, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// ── Day token ────────────────────────────────────────────────────────────────

func TestOpen_DayToken_EndToEnd(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/open?token="+env.tokens.Today())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var out types.OpenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.OK)
	assert.Equal(t, "token", out.Method)

	assert.True(t, env.session.IsOpen())
	log := env.session.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "token", log[0].Agent)

	resp, body = get(t, env.ts.URL+"/check")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "open", body)

	env.clock.Advance(4 * time.Second)
	resp, body = get(t, env.ts.URL+"/check")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "closed", body)
}

func TestOpen_DayToken_Invalid(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/open?token=nope")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var out types.DeniedResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "unauthorized", out.Kind)
	assert.Equal(t, "invalid token", out.Reason)
	assert.False(t, env.session.IsOpen())
}

// ── Signed links ─────────────────────────────────────────────────────────────

func TestOpen_SignedLink(t *testing.T) {
	env := newTestServer(t)

	link, err := env.signer.SignURL(env.ts.URL, capability.Request{
		Name: "John Doe", Host: "eventOrganiser", Reason: "Web3 Meetup & Drinks",
		IssuedAt: now, StartTime: now.Add(-5 * time.Minute), Duration: 3 * time.Hour,
	})
	require.NoError(t, err)

	resp, body := get(t, link)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "eventOrganiser (Door Server)", env.session.Log()[0].Agent)
}

func TestOpen_SignedLink_TooEarly(t *testing.T) {
	env := newTestServer(t)

	start := now.Add(1900 * time.Second)
	link, err := env.signer.SignURL(env.ts.URL, capability.Request{
		Name: "John Doe", Host: "h", Reason: "r", IssuedAt: now, StartTime: start, Duration: time.Hour,
	})
	require.NoError(t, err)

	resp, body := get(t, link)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var out types.DeniedResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "event has not started yet", out.Reason)
	require.NotNil(t, out.ValidFrom)
	assert.True(t, out.ValidFrom.Equal(start.Add(-30*time.Minute)))
}

func TestOpen_SignedLink_MissingParams(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/open?sig=0xabc&name=x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "missing required parameters")
}

func TestOpen_EmptySigFallsThroughToToken(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/open?sig=&token="+env.tokens.Today())
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "token", env.session.Log()[0].Agent)
}

// ── Wallet ───────────────────────────────────────────────────────────────────

func TestOpen_NoWalletConfigured(t *testing.T) {
	env := newTestServer(t)

	resp, _ := get(t, env.ts.URL+"/open")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// ── Shortcut ─────────────────────────────────────────────────────────────────

func TestShortcut_Form(t *testing.T) {
	env := newTestServer(t)

	form := url.Values{"userid": {"42"}, "token": {env.tokens.ForPrincipal("42")}}
	resp, err := http.PostForm(env.ts.URL+"/open", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "🚪 Door opened by <@42> via shortcut 📲", string(body))
	assert.True(t, env.session.IsOpen())
}

func TestShortcut_JSONBadToken(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/open", "application/json",
		strings.NewReader(`{"userid":"42","token":"wrong"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "invalid token", string(body))
}

// ── Check / status / log / token ─────────────────────────────────────────────

func TestCheck_Protobuf(t *testing.T) {
	env := newTestServer(t)
	env.session.Open("x", "test")

	resp, body := get(t, env.ts.URL+"/check", "Accept", "application/x-protobuf")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	var v wrapperspb.BoolValue
	require.NoError(t, proto.Unmarshal([]byte(body), &v))
	assert.True(t, v.GetValue())
}

func TestStatus_TracksForwardedIP(t *testing.T) {
	env := newTestServer(t)

	get(t, env.ts.URL+"/check", "X-Forwarded-For", "10.0.0.7, 172.16.0.1", "User-Agent", "esp32/1.0")

	resp, body := get(t, env.ts.URL+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "esp32/1.0 online", status["10.0.0.7"])

	env.clock.Advance(time.Minute)
	_, body = get(t, env.ts.URL+"/status")
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "Offline since 14/05/2026, 19:00:00 (60s ago)", status["10.0.0.7"])
}

func TestLogAndHome(t *testing.T) {
	env := newTestServer(t)
	env.session.Open("alice", "bot")

	_, body := get(t, env.ts.URL+"/log")
	var log []types.AccessEvent
	require.NoError(t, json.Unmarshal([]byte(body), &log))
	require.Len(t, log, 1)
	assert.Equal(t, "alice", log[0].PrincipalID)

	_, body = get(t, env.ts.URL+"/")
	var home types.HomeResponse
	require.NoError(t, json.Unmarshal([]byte(body), &home))
	assert.Len(t, home.DoorLog, 1)
	assert.Len(t, home.Today, 1)

	resp, _ := get(t, env.ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToken(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/token?secret="+secret)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, env.tokens.Today(), body)

	resp, _ = get(t, env.ts.URL+"/token?secret=guess")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAudit(t *testing.T) {
	env := newTestServer(t)
	get(t, env.ts.URL+"/open?token="+env.tokens.Today())

	resp, body := get(t, env.ts.URL+"/audit?limit=10&secret="+secret)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var entries []types.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, types.MethodToken, entries[0].Method)
	assert.Equal(t, "Token User", entries[0].Name)

	resp, _ = get(t, env.ts.URL+"/audit")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestServer(t)
	get(t, env.ts.URL+"/open?token="+env.tokens.Today())
	get(t, env.ts.URL+"/open?token=bad")

	_, body := get(t, env.ts.URL+"/metrics")
	assert.Contains(t, body, `hubdoor_door_opens_total{method="token"} 1`)
	assert.Contains(t, body, `hubdoor_access_denied_total{kind="unauthorized",method="token"} 1`)
	assert.Contains(t, body, "hubdoor_door_open 1")
}
