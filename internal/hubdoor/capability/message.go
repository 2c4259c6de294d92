// Package capability implements signed door-access links: the canonical
// message an event host signs, personal-message signing and address
// recovery over secp256k1, and verification of a link against the
// authorized-key whitelist and its validity window.
package capability

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Request is a typed access claim, as an issuer builds it.
type Request struct {
	Name      string
	Host      string
	Reason    string
	IssuedAt  time.Time
	StartTime time.Time
	Duration  time.Duration // truncated to whole minutes on the wire
	EventURL  string
}

// Params are the raw link parameters. Values are kept exactly as received
// because the signed message is built from them verbatim.
type Params struct {
	Name      string
	Host      string
	Reason    string
	Timestamp string
	StartTime string
	Duration  string
	EventURL  string
	Sig       string
	Secret    string
}

// Params converts a Request into unsigned wire parameters.
func (r Request) Params() Params {
	return Params{
		Name:      r.Name,
		Host:      r.Host,
		Reason:    r.Reason,
		Timestamp: strconv.FormatInt(r.IssuedAt.Unix(), 10),
		StartTime: strconv.FormatInt(r.StartTime.Unix(), 10),
		Duration:  strconv.FormatInt(int64(r.Duration/time.Minute), 10),
		EventURL:  r.EventURL,
	}
}

// ParamsFromQuery reads link parameters from a decoded query string.
func ParamsFromQuery(q url.Values) Params {
	return Params{
		Name:      q.Get("name"),
		Host:      q.Get("host"),
		Reason:    q.Get("reason"),
		Timestamp: q.Get("timestamp"),
		StartTime: q.Get("startTime"),
		Duration:  q.Get("duration"),
		EventURL:  q.Get("eventUrl"),
		Sig:       q.Get("sig"),
		Secret:    q.Get("secret"),
	}
}

// Complete reports whether every required field is present. EventURL and
// Secret are optional.
func (p Params) Complete() bool {
	return p.Name != "" && p.Host != "" && p.Reason != "" &&
		p.Timestamp != "" && p.StartTime != "" && p.Duration != "" && p.Sig != ""
}

// Message is the canonical string that is signed. Field order is fixed and
// values are not escaped; eventUrl is appended only when present.
func (p Params) Message() string {
	var b strings.Builder
	b.WriteString("name=")
	b.WriteString(p.Name)
	b.WriteString("&host=")
	b.WriteString(p.Host)
	b.WriteString("&reason=")
	b.WriteString(p.Reason)
	b.WriteString("&timestamp=")
	b.WriteString(p.Timestamp)
	b.WriteString("&startTime=")
	b.WriteString(p.StartTime)
	b.WriteString("&duration=")
	b.WriteString(p.Duration)
	if p.EventURL != "" {
		b.WriteString("&eventUrl=")
		b.WriteString(p.EventURL)
	}
	return b.String()
}

// Query encodes the parameters, including sig, in canonical order.
func (p Params) Query() string {
	pairs := [][2]string{
		{"name", p.Name},
		{"host", p.Host},
		{"reason", p.Reason},
		{"timestamp", p.Timestamp},
		{"startTime", p.StartTime},
		{"duration", p.Duration},
	}
	if p.EventURL != "" {
		pairs = append(pairs, [2]string{"eventUrl", p.EventURL})
	}
	if p.Sig != "" {
		pairs = append(pairs, [2]string{"sig", p.Sig})
	}

	var b strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	return b.String()
}

// Window is the nominal access period of a link.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowOf parses startTime (unix seconds) and duration (minutes).
func WindowOf(p Params) (Window, error) {
	start, err := strconv.ParseInt(strings.TrimSpace(p.StartTime), 10, 64)
	if err != nil {
		return Window{}, err
	}
	minutes, err := strconv.ParseInt(strings.TrimSpace(p.Duration), 10, 64)
	if err != nil {
		return Window{}, err
	}
	s := time.Unix(start, 0)
	return Window{Start: s, End: s.Add(time.Duration(minutes) * time.Minute)}, nil
}

// Widen returns the window extended by grace on both sides.
func (w Window) Widen(grace time.Duration) Window {
	return Window{Start: w.Start.Add(-grace), End: w.End.Add(grace)}
}
