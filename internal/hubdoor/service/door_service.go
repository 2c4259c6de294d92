package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/dailytoken"
	"github.com/commonshub/hubdoor/internal/hubdoor/store"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
	"github.com/commonshub/hubdoor/internal/metrics"
)

// Notifier posts a message to the door's chat channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// MemberDirectory resolves a chat principal. Implementations return
// ErrUnknownPrincipal when the principal is not a member.
type MemberDirectory interface {
	Member(ctx context.Context, principalID string) (types.Profile, error)
}

// WalletSession is a verified wallet login with its community balance.
type WalletSession struct {
	Address   string
	Username  string
	AvatarURL string
	Balance   float64
}

// WalletAuthenticator resolves wallet login query parameters. It returns
// nil without error when the query carries no usable session.
type WalletAuthenticator interface {
	Authenticate(ctx context.Context, q url.Values) (*WalletSession, error)
}

type Dependencies struct {
	Session   *Session
	Verifier  *capability.Verifier
	Tokens    *dailytoken.Issuer
	Secret    string
	Notifier  Notifier
	Directory MemberDirectory
	Wallet    WalletAuthenticator
	Presence  PresenceMarker
	FunFacts  *FunFacts
	Audit     store.AuditStore
	Heartbeat store.HeartbeatStore
	Metrics   *metrics.Collector
	Logger    *zap.Logger

	PresentRoleID string
	// ShortcutEnforceSchedule makes the shortcut flow run the role
	// decider as well as the token check.
	ShortcutEnforceSchedule bool
}

// ChatRequest is an "open" command from the chat platform.
type ChatRequest struct {
	Profile types.Profile
	Agent   string // the bot's own tag
}

// ChatReply is what the bot answers.
type ChatReply struct {
	Granted bool
	Message string
}

// DoorService runs every access flow against the session and records the
// side effects of a grant.
type DoorService struct {
	deps Dependencies
	log  *zap.Logger
}

func NewDoorService(deps Dependencies) *DoorService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &DoorService{deps: deps, log: deps.Logger.Named("door")}
}

func (d *DoorService) Session() *Session { return d.deps.Session }

// OpenWithCapability verifies a signed link and opens the door for its
// holder.
func (d *DoorService) OpenWithCapability(ctx context.Context, p capability.Params) (types.OpenResponse, error) {
	grant, err := d.deps.Verifier.Verify(p, d.deps.Session.Now())
	if err != nil {
		return types.OpenResponse{}, d.denied(types.MethodSignature, err)
	}

	principal := fmt.Sprintf("event_%s_%s", p.Host, p.Timestamp)
	d.deps.Session.SetProfile(types.Profile{ID: principal, DisplayName: p.Name, Username: p.Name})
	d.open(ctx, types.MethodSignature, p.Name, principal, fmt.Sprintf("%s (%s)", p.Host, grant.KeyName), map[string]string{
		"host":          p.Host,
		"reason":        p.Reason,
		"eventUrl":      p.EventURL,
		"authorizedKey": grant.KeyName,
		"startTime":     p.StartTime,
		"duration":      p.Duration,
		"secretBypass":  strconv.FormatBool(grant.Bypass),
	})

	link := p.Reason
	if p.EventURL != "" {
		link = "<" + p.EventURL + ">"
	}
	d.notify(ctx, fmt.Sprintf("🚪 %s opened the door for %s hosted by %s", p.Name, link, p.Host))

	return d.response(types.MethodSignature,
		fmt.Sprintf("Welcome %s! The door is open for %s.", p.Name, p.Reason),
		p.EventURL, nil), nil
}

// CapabilityWindow reports the window, grace included, during which p
// would be accepted. ok is false when p carries no parseable window.
func (d *DoorService) CapabilityWindow(p capability.Params) (capability.Window, bool) {
	w, err := capability.WindowOf(p)
	if err != nil {
		return capability.Window{}, false
	}
	return w.Widen(d.deps.Verifier.Grace()), true
}

// OpenWithDayToken opens the door for an anonymous visitor holding
// today's token.
func (d *DoorService) OpenWithDayToken(ctx context.Context, token string) (types.OpenResponse, error) {
	if !d.deps.Tokens.CheckToday(token) {
		d.log.Info("invalid day token")
		return types.OpenResponse{}, d.denied(types.MethodToken, access.Unauthorized(ErrInvalidToken))
	}

	stamp := d.deps.Tokens.TodayStamp()
	d.open(ctx, types.MethodToken, "Token User", stamp, "token", map[string]string{"date": stamp})
	d.notify(ctx, "🚪 Door opened using today's token")

	return d.response(types.MethodToken, "Door opened", "", d.deps.Session.TodayVisitors()), nil
}

// OpenWithShortcut checks a per-principal token and opens the door for
// that chat member.
func (d *DoorService) OpenWithShortcut(ctx context.Context, principalID, token string) (types.OpenResponse, error) {
	if principalID == "" || token == "" {
		return types.OpenResponse{}, d.denied(types.MethodShortcut, access.Malformed(ErrMissingShortcut))
	}
	if !d.deps.Tokens.CheckPrincipal(principalID, token) {
		d.log.Info("invalid shortcut token", zap.String("principal", principalID))
		return types.OpenResponse{}, d.denied(types.MethodShortcut, access.Unauthorized(ErrInvalidToken))
	}

	profile := types.Profile{ID: principalID, DisplayName: principalID}
	if d.deps.Directory != nil {
		p, err := d.deps.Directory.Member(ctx, principalID)
		switch {
		case errors.Is(err, ErrUnknownPrincipal):
			return types.OpenResponse{}, d.denied(types.MethodShortcut, access.Unauthorized(err))
		case err != nil:
			return types.OpenResponse{}, d.denied(types.MethodShortcut, access.Upstream("member lookup failed", err))
		}
		profile = p
	}

	if d.deps.ShortcutEnforceSchedule {
		if dec := d.deps.Session.Decide(principalID); !dec.Granted {
			return types.OpenResponse{}, d.denied(types.MethodShortcut,
				&access.Error{Kind: access.KindUnauthorized, Reason: dec.Reason, Err: ErrNotAllowedNow})
		}
	}

	d.deps.Session.SetProfile(profile)
	d.markPresent(ctx, principalID)
	d.open(ctx, types.MethodShortcut, profile.DisplayName, principalID, profile.DisplayName, map[string]string{
		"userId":   principalID,
		"username": profile.Username,
	})

	msg := fmt.Sprintf("🚪 Door opened by <@%s> via shortcut 📲", principalID)
	d.notify(ctx, msg)
	return d.response(types.MethodShortcut, msg, "", nil), nil
}

// OpenWithWallet opens the door for a wallet holding community tokens.
func (d *DoorService) OpenWithWallet(ctx context.Context, q url.Values) (types.OpenResponse, error) {
	if d.deps.Wallet == nil {
		return types.OpenResponse{}, d.denied(types.MethodWallet, access.Unauthorized(ErrNoWalletSession))
	}
	sess, err := d.deps.Wallet.Authenticate(ctx, q)
	if err != nil {
		// A balance that cannot be read counts as no balance.
		d.log.Warn("wallet balance lookup failed", zap.Error(err))
		return types.OpenResponse{}, d.denied(types.MethodWallet, access.Unauthorized(ErrNoBalance))
	}
	if sess == nil {
		return types.OpenResponse{}, d.denied(types.MethodWallet, access.Unauthorized(ErrNoWalletSession))
	}
	if sess.Balance <= 0 {
		return types.OpenResponse{}, d.denied(types.MethodWallet, access.Unauthorized(ErrNoBalance))
	}

	name := sess.Username
	if name == "" {
		name = shortAddress(sess.Address)
	}
	agent := sess.Username
	if agent == "" {
		agent = "unknown"
	}

	d.deps.Session.SetProfile(types.Profile{
		ID:          sess.Address,
		DisplayName: name,
		Username:    sess.Username,
		AvatarURL:   sess.AvatarURL,
	})
	d.open(ctx, types.MethodWallet, name, sess.Address, agent, map[string]string{
		"address": sess.Address,
		"balance": strconv.FormatFloat(sess.Balance, 'f', -1, 64),
	})
	d.notify(ctx, fmt.Sprintf("🚪 Door opened by %s via Citizen Wallet", name))

	return d.response(types.MethodWallet, fmt.Sprintf("Welcome %s!", name), "", d.deps.Session.TodayVisitors()), nil
}

const (
	msgNotMember = "You don't have access to the Commons Hub Brussels. Become a member to access the door."
	msgNotNow    = "No access at this time. %s."
)

// OpenWithChat runs the role decider for a chat "open" command. A refusal
// is a normal reply, not an error.
func (d *DoorService) OpenWithChat(ctx context.Context, req ChatRequest) ChatReply {
	p := req.Profile
	dec := d.deps.Session.Decide(p.ID)
	if !dec.Granted {
		kind := "no_roles"
		msg := msgNotMember
		if len(dec.Held) > 0 {
			kind = "not_now"
			msg = fmt.Sprintf(msgNotNow, dec.Held[0].Description)
		}
		d.deps.Metrics.RecordDenied(types.MethodChat, kind)
		d.log.Info("chat open denied", zap.String("principal", p.ID), zap.String("reason", dec.Reason))
		return ChatReply{Message: msg}
	}

	d.deps.Session.SetProfile(p)
	d.markPresent(ctx, p.ID)
	d.open(ctx, types.MethodChat, p.DisplayName, p.ID, req.Agent, map[string]string{
		"userId":   p.ID,
		"username": p.Username,
		"role":     dec.Role.Name,
	})

	msg := fmt.Sprintf("%s (%s)", Greeting(d.deps.Session.Now().Hour(), p.DisplayName), dec.Role.Description)
	if d.deps.FunFacts != nil {
		if fact, ok := d.deps.FunFacts.Pick(); ok {
			msg += " \n**Fun fact**: " + fact
		}
	}
	return ChatReply{Granted: true, Message: msg}
}

// Greeting picks a salutation for the local hour.
func Greeting(hour int, name string) string {
	switch {
	case hour < 9:
		return "Good morning early bird! 🐣"
	case hour < 12:
		return fmt.Sprintf("Good morning %s! ☀️", name)
	case hour < 18:
		return fmt.Sprintf("Good afternoon %s! 🌞", name)
	default:
		return fmt.Sprintf("Good evening %s! 🌙", name)
	}
}

// DayToken returns today's token to a caller holding the server secret.
func (d *DoorService) DayToken(secret string) (string, error) {
	if d.deps.Secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(d.deps.Secret)) != 1 {
		return "", access.Unauthorized(ErrInvalidSecret)
	}
	return d.deps.Tokens.Today(), nil
}

// Audit returns the latest durable audit records to a caller holding the
// server secret.
func (d *DoorService) Audit(ctx context.Context, secret string, limit int) ([]store.AuditRecord, error) {
	if d.deps.Secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(d.deps.Secret)) != 1 {
		return nil, access.Unauthorized(ErrInvalidSecret)
	}
	if d.deps.Audit == nil {
		return nil, nil
	}
	recs, err := d.deps.Audit.Recent(ctx, limit)
	if err != nil {
		return nil, access.Upstream("audit read failed", err)
	}
	return recs, nil
}

// Check records a door controller poll and reports the door state.
func (d *DoorService) Check(ctx context.Context, ip, userAgent string) bool {
	open := d.deps.Session.IsOpen()
	if d.deps.Heartbeat != nil {
		hb := types.Heartbeat{ReceivedAt: d.deps.Session.Now(), IP: ip, UserAgent: userAgent, DoorOpen: open}
		if err := d.deps.Heartbeat.RecordHeartbeat(ctx, hb); err != nil {
			d.log.Warn("record heartbeat failed", zap.String("ip", ip), zap.Error(err))
		}
	}
	return open
}

// Status summarizes each polling client. A client is online when its last
// poll is more recent than the door's dwell time.
func (d *DoorService) Status(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	if d.deps.Heartbeat == nil {
		return out, nil
	}
	latest, err := d.deps.Heartbeat.Latest(ctx)
	if err != nil {
		return nil, err
	}

	now := d.deps.Session.Now()
	for ip, hb := range latest {
		elapsed := now.Sub(hb.ReceivedAt)
		if elapsed > d.deps.Session.Dwell() {
			out[ip] = fmt.Sprintf("Offline since %s (%ds ago)",
				hb.ReceivedAt.In(d.deps.Session.Location()).Format("02/01/2006, 15:04:05"),
				int64(elapsed.Round(time.Second)/time.Second))
			continue
		}
		out[ip] = hb.UserAgent + " online"
	}
	return out, nil
}

// Home returns the last 50 log entries and today's visitors.
func (d *DoorService) Home() types.HomeResponse {
	return types.HomeResponse{
		DoorLog: d.deps.Session.Recent(50),
		Today:   d.deps.Session.TodayVisitors(),
	}
}

func (d *DoorService) open(ctx context.Context, method, name, principalID, agent string, meta map[string]string) {
	ev := d.deps.Session.Open(principalID, agent)
	d.deps.Metrics.RecordOpen(method)
	d.log.Info("door opened",
		zap.String("method", method),
		zap.String("principal", principalID),
		zap.String("agent", agent))

	if d.deps.Audit == nil {
		return
	}
	rec := store.AuditRecord{At: ev.Timestamp, Name: name, Method: method, PrincipalID: principalID, Metadata: compact(meta)}
	if err := d.deps.Audit.RecordAccess(ctx, rec); err != nil {
		d.log.Error("audit write failed", zap.String("method", method), zap.Error(err))
	}
}

func (d *DoorService) denied(method string, err error) error {
	d.deps.Metrics.RecordDenied(method, access.KindOf(err).String())
	d.log.Info("access denied",
		zap.String("method", method),
		zap.String("reason", access.ReasonOf(err)),
		zap.Error(err))
	return err
}

func (d *DoorService) notify(ctx context.Context, msg string) {
	if d.deps.Notifier == nil {
		return
	}
	if err := d.deps.Notifier.Notify(ctx, msg); err != nil {
		d.log.Warn("notify failed", zap.Error(err))
	}
}

func (d *DoorService) markPresent(ctx context.Context, principalID string) {
	if !d.deps.Session.MarkPresent(principalID) {
		return
	}
	if d.deps.Presence == nil || d.deps.PresentRoleID == "" {
		return
	}
	if err := d.deps.Presence.AddRole(ctx, principalID, d.deps.PresentRoleID); err != nil {
		d.log.Warn("add present role failed", zap.String("principal", principalID), zap.Error(err))
	}
}

func (d *DoorService) response(method, msg, eventURL string, visitors []types.Profile) types.OpenResponse {
	return types.OpenResponse{
		OK:         true,
		Method:     method,
		Message:    msg,
		EventURL:   eventURL,
		Visitors:   visitors,
		ServerTime: d.deps.Session.Now().UTC().Format(time.RFC3339Nano),
	}
}

func shortAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:8]
	}
	return addr
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
