// Package dailytoken derives the shared-secret bearer tokens that rotate
// with the calendar day, and the per-principal shortcut tokens built the
// same way.
//
// The digest is MD5, used as a rotation id and not for strength: a token
// is only as unguessable as the server secret behind it.
package dailytoken

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/commonshub/hubdoor/internal/clock"
)

// DayStamp formats t's calendar date, in t's location, as YYYYMMDD.
func DayStamp(t time.Time) string { return t.Format("20060102") }

// Derive returns hex(md5(tenant ":" rotating ":" secret)).
func Derive(tenantID, rotating, secret string) string {
	sum := md5.Sum([]byte(strings.Join([]string{tenantID, rotating, secret}, ":")))
	return hex.EncodeToString(sum[:])
}

// ForDay is the day token for the calendar date of day.
func ForDay(tenantID string, day time.Time, secret string) string {
	return Derive(tenantID, DayStamp(day), secret)
}

// ForPrincipal is the shortcut token of a principal. It does not rotate.
func ForPrincipal(tenantID, principalID, secret string) string {
	return Derive(tenantID, principalID, secret)
}

// Issuer computes and checks tokens against the current local date. There
// is no invalidation: a day token stops matching when the date rolls over.
type Issuer struct {
	tenantID string
	secret   string
	clock    clock.Clock
	loc      *time.Location
}

func NewIssuer(tenantID, secret string, c clock.Clock, loc *time.Location) *Issuer {
	if loc == nil {
		loc = time.Local
	}
	return &Issuer{tenantID: tenantID, secret: secret, clock: c, loc: loc}
}

// Today returns the current day token.
func (i *Issuer) Today() string { return ForDay(i.tenantID, i.today(), i.secret) }

// TodayStamp returns the current local date as YYYYMMDD.
func (i *Issuer) TodayStamp() string { return DayStamp(i.today()) }

// Enabled reports whether tokens can be checked at all. Without a secret
// every token is derivable from public ids, so none is accepted.
func (i *Issuer) Enabled() bool { return i.secret != "" }

// CheckToday reports whether token is the current day token.
func (i *Issuer) CheckToday(token string) bool {
	return i.Enabled() && equal(token, i.Today())
}

// ForPrincipal returns the shortcut token of principalID.
func (i *Issuer) ForPrincipal(principalID string) string {
	return ForPrincipal(i.tenantID, principalID, i.secret)
}

// CheckPrincipal reports whether token is principalID's shortcut token.
func (i *Issuer) CheckPrincipal(principalID, token string) bool {
	if principalID == "" || !i.Enabled() {
		return false
	}
	return equal(token, i.ForPrincipal(principalID))
}

func (i *Issuer) today() time.Time { return i.clock.Now().In(i.loc) }

func equal(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
