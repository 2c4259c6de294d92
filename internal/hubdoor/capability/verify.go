package capability

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
)

// DefaultGrace is how early before the start, and how late after the end,
// a link is still honored.
const DefaultGrace = 30 * time.Minute

var (
	ErrMissingParams    = errors.New("missing required parameters")
	ErrBadWindow        = errors.New("invalid startTime or duration")
	ErrNotStarted       = errors.New("event has not started yet")
	ErrExpired          = errors.New("event access period has expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnauthorizedKey  = errors.New("unauthorized public key")
)

// Grant is a verified link.
type Grant struct {
	Params  Params
	Address string // recovered signer address
	KeyName string // display name of the matching whitelist entry
	Bypass  bool   // the time window was skipped via the shared secret
}

// Verifier checks links against a keyring. There is no replay store: a
// valid link can be reused by anyone holding it until its window, plus
// grace, has passed.
type Verifier struct {
	keys   *Keyring
	secret string
	grace  time.Duration
}

// NewVerifier builds a Verifier. An empty secret disables the bypass.
func NewVerifier(keys *Keyring, secret string) *Verifier {
	return &Verifier{keys: keys, secret: secret, grace: DefaultGrace}
}

// Grace returns the early/late allowance around a link's window.
func (v *Verifier) Grace() time.Duration { return v.grace }

// Verify validates p at instant now. Errors are *access.Error values
// wrapping one of the sentinels above.
func (v *Verifier) Verify(p Params, now time.Time) (Grant, error) {
	if !p.Complete() {
		return Grant{}, access.Malformed(ErrMissingParams)
	}

	bypass := v.secret != "" && subtle.ConstantTimeCompare([]byte(p.Secret), []byte(v.secret)) == 1

	if !bypass {
		w, err := WindowOf(p)
		if err != nil {
			return Grant{}, access.Malformed(ErrBadWindow)
		}
		if now.Before(w.Start.Add(-v.grace)) {
			return Grant{}, access.Unauthorized(ErrNotStarted)
		}
		if now.After(w.End.Add(v.grace)) {
			return Grant{}, access.Unauthorized(ErrExpired)
		}
	}

	addr, err := Recover(p.Message(), p.Sig)
	if err != nil {
		return Grant{}, &access.Error{Kind: access.KindUnauthorized, Reason: ErrInvalidSignature.Error(), Err: errors.Join(ErrInvalidSignature, err)}
	}

	key, ok := v.keys.Lookup(addr)
	if !ok {
		return Grant{}, access.Unauthorized(ErrUnauthorizedKey)
	}

	return Grant{Params: p, Address: addr, KeyName: key.Name, Bypass: bypass}, nil
}
