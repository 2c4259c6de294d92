package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/metrics"
)

// MemberSource lists the principals currently holding chat roles. One
// call reads the member list once for all requested roles.
type MemberSource interface {
	MembersByRole(ctx context.Context, roleIDs []string) (map[string][]string, error)
}

// PresenceMarker grants and revokes chat roles.
type PresenceMarker interface {
	AddRole(ctx context.Context, principalID, roleID string) error
	RemoveRole(ctx context.Context, principalID, roleID string) error
}

type RefresherConfig struct {
	Roles []access.Role
	// Interval defaults to one hour.
	Interval time.Duration
	// PresentRoleID is the transient "present today" role, cleared at the
	// first refresh after local midnight. Empty disables the reset.
	PresentRoleID string
	// DryRun logs role removals instead of performing them.
	DryRun bool
}

// RoleRefresher rebuilds the session's role snapshot from the chat
// platform on a fixed interval.
type RoleRefresher struct {
	session *Session
	source  MemberSource
	marker  PresenceMarker
	cfg     RefresherConfig
	clock   clock.Clock
	metrics *metrics.Collector
	logger  *zap.Logger
	periodic
}

func NewRoleRefresher(
	session *Session,
	source MemberSource,
	marker PresenceMarker,
	cfg RefresherConfig,
	c clock.Clock,
	m *metrics.Collector,
	logger *zap.Logger,
) *RoleRefresher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if c == nil {
		c = clock.Real()
	}
	return &RoleRefresher{
		session:  session,
		source:   source,
		marker:   marker,
		cfg:      cfg,
		clock:    c,
		metrics:  m,
		logger:   logger.Named("refresher"),
		periodic: newPeriodic(),
	}
}

// Start runs a cycle now and then every interval until Stop.
func (r *RoleRefresher) Start(ctx context.Context) {
	r.start(ctx, r.clock, r.cfg.Interval, r.cycle)
	r.logger.Info("role refresher started",
		zap.Int("roles", len(r.cfg.Roles)),
		zap.Duration("interval", r.cfg.Interval))
}

func (r *RoleRefresher) cycle(ctx context.Context) {
	if r.cfg.PresentRoleID != "" && r.session.Now().Hour() == 0 {
		r.ResetPresent(ctx)
	}
	r.Refresh(ctx)
}

// Refresh fetches the members of every role in one pass and swaps in a new
// snapshot. When the fetch fails every role keeps the members it had in the
// previous snapshot.
func (r *RoleRefresher) Refresh(ctx context.Context) {
	ids := make([]string, len(r.cfg.Roles))
	for i, role := range r.cfg.Roles {
		ids[i] = role.ID
	}

	fetched, err := r.source.MembersByRole(ctx, ids)
	if err != nil {
		r.logger.Warn("role fetch failed, keeping previous members",
			zap.Int("roles", len(r.cfg.Roles)),
			zap.Error(err))
		prev := r.session.Roster()
		fetched = make(map[string][]string, len(r.cfg.Roles))
		for _, role := range r.cfg.Roles {
			fetched[role.ID] = prev.Members(role.ID)
			r.metrics.RecordRefreshFailure(role.Name)
		}
	} else {
		for _, role := range r.cfg.Roles {
			r.metrics.SetRoleMembers(role.Name, len(fetched[role.ID]))
		}
	}

	r.session.SetRoster(access.NewRoster(r.cfg.Roles, fetched))
	r.logger.Debug("roles refreshed", zap.Int("roles", len(r.cfg.Roles)))
}

// ResetPresent removes the present-today role from everyone holding it.
// Individual failures are logged and skipped.
func (r *RoleRefresher) ResetPresent(ctx context.Context) {
	r.session.ResetPresent()
	if r.marker == nil {
		return
	}

	byRole, err := r.source.MembersByRole(ctx, []string{r.cfg.PresentRoleID})
	if err != nil {
		r.logger.Warn("list present members failed", zap.Error(err))
		return
	}
	ids := byRole[r.cfg.PresentRoleID]
	for _, id := range ids {
		if r.cfg.DryRun {
			r.logger.Info("dry run: would remove present role", zap.String("principal", id))
			continue
		}
		if err := r.marker.RemoveRole(ctx, id, r.cfg.PresentRoleID); err != nil {
			r.logger.Warn("remove present role failed", zap.String("principal", id), zap.Error(err))
		}
	}
	r.logger.Info("present role reset", zap.Int("members", len(ids)))
}
