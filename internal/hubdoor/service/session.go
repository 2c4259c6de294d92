package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// DefaultDwell is how long the door reports itself open after a grant.
const DefaultDwell = 3500 * time.Millisecond

type SessionConfig struct {
	Clock    clock.Clock
	Location *time.Location
	Dwell    time.Duration
	// OnChange is called outside the session lock on every open/closed
	// transition. Re-opening an open door is not a transition.
	OnChange func(open bool)
}

// Session is the door's runtime state: the open flag and its auto-close
// timer, the door log, cached profiles, the role snapshot and the set of
// principals marked present today.
//
// Handlers run concurrently, so everything except the roster is guarded
// by mu. The roster is swapped atomically by the refresher; readers keep
// deciding against the previous snapshot while a refresh is in flight.
type Session struct {
	clock    clock.Clock
	loc      *time.Location
	dwell    time.Duration
	onChange func(bool)

	roster atomic.Pointer[access.Roster]

	mu       sync.Mutex
	open     bool
	gen      uint64
	closer   *clock.Timer
	log      []types.AccessEvent
	profiles map[string]types.Profile
	presDay  string
	present  map[string]struct{}
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	s := &Session{
		clock:    cfg.Clock,
		loc:      cfg.Location,
		dwell:    cfg.Dwell,
		onChange: cfg.OnChange,
		profiles: make(map[string]types.Profile),
		present:  make(map[string]struct{}),
	}
	s.roster.Store(access.NewRoster(nil, nil))
	return s
}

// Now is the current time in the door's local zone.
func (s *Session) Now() time.Time { return s.clock.Now().In(s.loc) }

func (s *Session) Dwell() time.Duration { return s.dwell }

func (s *Session) Location() *time.Location { return s.loc }

// Open records an access event and opens the door, restarting the
// auto-close timer. Only the timer from the latest Open closes the door.
func (s *Session) Open(principalID, agent string) types.AccessEvent {
	ev := types.AccessEvent{Timestamp: s.Now(), PrincipalID: principalID, Agent: agent}

	s.mu.Lock()
	s.log = append(s.log, ev)
	changed := !s.open
	s.open = true
	if s.closer != nil {
		s.closer.Stop()
	}
	s.gen++
	gen := s.gen
	s.closer = s.clock.AfterFunc(s.dwell, func() { s.autoClose(gen) })
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(true)
	}
	return ev
}

func (s *Session) autoClose(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	s.closer = nil
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(false)
	}
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Shutdown cancels a pending auto-close and closes the door.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.closer != nil {
		s.closer.Stop()
		s.closer = nil
	}
	s.gen++
	wasOpen := s.open
	s.open = false
	s.mu.Unlock()

	if wasOpen && s.onChange != nil {
		s.onChange(false)
	}
}

// Log returns a copy of the door log in insertion order.
func (s *Session) Log() []types.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.AccessEvent(nil), s.log...)
}

// Recent returns the last n log entries, oldest first.
func (s *Session) Recent(n int) []types.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.log) {
		n = len(s.log)
	}
	return append([]types.AccessEvent(nil), s.log[len(s.log)-n:]...)
}

// Today returns the log entries whose local date is today.
func (s *Session) Today() []types.AccessEvent {
	today := dateKey(s.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.AccessEvent
	for _, ev := range s.log {
		if dateKey(ev.Timestamp.In(s.loc)) == today {
			out = append(out, ev)
		}
	}
	return out
}

// TodayVisitors lists, once each and in first-visit order, the principals
// who opened the door today. Principals without a cached profile are
// reported by id.
func (s *Session) TodayVisitors() []types.Profile {
	events := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(events))
	var out []types.Profile
	for _, ev := range events {
		if _, ok := seen[ev.PrincipalID]; ok {
			continue
		}
		seen[ev.PrincipalID] = struct{}{}
		p, ok := s.profiles[ev.PrincipalID]
		if !ok {
			p = types.Profile{ID: ev.PrincipalID, DisplayName: ev.PrincipalID}
		}
		out = append(out, p)
	}
	return out
}

// SetProfile overwrites the cached profile for p.ID.
func (s *Session) SetProfile(p types.Profile) {
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
}

func (s *Session) Profile(id string) (types.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// Roster returns the current role snapshot. It never returns nil.
func (s *Session) Roster() *access.Roster { return s.roster.Load() }

func (s *Session) SetRoster(r *access.Roster) {
	if r == nil {
		r = access.NewRoster(nil, nil)
	}
	s.roster.Store(r)
}

// Decide runs the role decider for principalID against the current
// snapshot at the local time.
func (s *Session) Decide(principalID string) access.Decision {
	return access.Decide(principalID, s.Roster(), s.Now())
}

// MarkPresent records principalID as present today and reports whether it
// was not already marked.
func (s *Session) MarkPresent(principalID string) bool {
	today := dateKey(s.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presDay != today {
		s.presDay = today
		s.present = make(map[string]struct{})
	}
	if _, ok := s.present[principalID]; ok {
		return false
	}
	s.present[principalID] = struct{}{}
	return true
}

// ResetPresent forgets who was present.
func (s *Session) ResetPresent() {
	s.mu.Lock()
	s.present = make(map[string]struct{})
	s.presDay = ""
	s.mu.Unlock()
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }
