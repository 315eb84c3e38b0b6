package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/core"
	"flowmoney/internal/storage"
)

// AdminPageSize is the admin user listing page size.
const AdminPageSize = 20

// MembershipService owns the free / trial / Pro lifecycle. Membership is
// reconciled lazily on every resolution and in bulk by the worker.
type MembershipService struct {
	users    storage.UserStore
	notifier Notifier
	now      Clock
}

func NewMembershipService(users storage.UserStore, notifier Notifier, now Clock) *MembershipService {
	return &MembershipService{
		users:    users,
		notifier: orNoop(notifier),
		now:      orSystemClock(now),
	}
}

// ResolveProfile returns the reconciled profile of userID, creating the
// trial profile on first sight.
func (s *MembershipService) ResolveProfile(ctx context.Context, userID string) (core.Profile, error) {
	return s.ResolveIdentity(ctx, userID, "")
}

// ResolveIdentity is ResolveProfile with the display name used when the
// profile has to be created.
func (s *MembershipService) ResolveIdentity(ctx context.Context, userID, displayName string) (core.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Profile{}, core.ErrUnauthorized
	}
	now := s.now()

	p, err := s.users.GetProfile(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		p, err = s.users.CreateProfile(ctx, core.NewTrialProfile(userID, strings.TrimSpace(displayName), now))
		if err != nil {
			return core.Profile{}, fmt.Errorf("create profile: %w", err)
		}
		slog.InfoContext(ctx, "Trial started", "user_id", userID, "trial_ends_at", p.TrialEndsAt)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("resolve profile: %w", err)
	}

	change, ok := p.Reconcile(now)
	if !ok {
		return p, nil
	}
	if err := s.users.UpdateMembership(ctx, userID, change, now); err != nil {
		return core.Profile{}, fmt.Errorf("reconcile membership: %w", err)
	}
	slog.InfoContext(ctx, "Membership reconciled",
		"user_id", userID,
		"is_pro", change.IsPro,
		"tier", change.MembershipTier)
	emit(ctx, s.notifier, userID, core.ChangeMembership, userID, "", now)
	return p.Apply(change, now), nil
}

// RequirePro resolves the profile and fails with core.ErrProRequired when
// the user is not Pro after reconciliation.
func (s *MembershipService) RequirePro(ctx context.Context, userID string) (core.Profile, error) {
	p, err := s.ResolveProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	if !p.IsPro {
		return p, core.ErrProRequired
	}
	return p, nil
}

// GrantPermanentPro upgrades the user to Pro without expiry.
func (s *MembershipService) GrantPermanentPro(ctx context.Context, userID string) (core.Profile, error) {
	p, err := s.ResolveProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	if p.IsPermanentPro() && p.MembershipTier == core.TierPro && p.TrialEndsAt == nil && p.TrialStartedAt == nil {
		return p, nil
	}
	now := s.now()
	change := core.PermanentPro()
	if err := s.users.UpdateMembership(ctx, userID, change, now); err != nil {
		return core.Profile{}, fmt.Errorf("grant permanent pro: %w", err)
	}
	slog.InfoContext(ctx, "Permanent Pro granted", "user_id", userID)
	emit(ctx, s.notifier, userID, core.ChangeMembership, userID, "", now)
	return p.Apply(change, now), nil
}

// GrantTimedMembership is the administrative override: the tier follows
// isPro and the expiry is stored as given.
func (s *MembershipService) GrantTimedMembership(ctx context.Context, userID string, isPro bool, expiresAt *time.Time) (core.Profile, error) {
	p, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("grant membership: %w", err)
	}
	now := s.now()
	change := core.TimedMembership(isPro, expiresAt)
	if err := s.users.UpdateMembership(ctx, userID, change, now); err != nil {
		return core.Profile{}, fmt.Errorf("grant membership: %w", err)
	}
	slog.InfoContext(ctx, "Membership overridden",
		"user_id", userID,
		"is_pro", isPro,
		"expires_at", expiresAt)
	emit(ctx, s.notifier, userID, core.ChangeMembership, userID, "", now)
	return p.Apply(change, now), nil
}

// GrantMembershipDays grants Pro for days from now, or permanently when
// days is 0. Revoking ignores days.
func (s *MembershipService) GrantMembershipDays(ctx context.Context, userID string, isPro bool, days int) (core.Profile, error) {
	if days < 0 {
		return core.Profile{}, core.NewValidationError("days", "must not be negative")
	}
	var expiresAt *time.Time
	if isPro && days > 0 {
		t := s.now().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &t
	}
	return s.GrantTimedMembership(ctx, userID, isPro, expiresAt)
}

// ExpireMemberships demotes every profile whose Pro expiry has passed.
func (s *MembershipService) ExpireMemberships(ctx context.Context) (int, error) {
	n, err := s.users.ExpireMemberships(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired memberships demoted", "count", n)
	}
	return n, nil
}

// UpdateSavingsSettings configures the monthly savings goal. Pro only.
func (s *MembershipService) UpdateSavingsSettings(ctx context.Context, userID string, enabled bool, goal decimal.Decimal) (core.Profile, error) {
	p, err := s.RequirePro(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	if goal.IsNegative() {
		return core.Profile{}, core.NewValidationError("goal", "must not be negative")
	}
	goal = goal.Round(core.AmountPlaces)

	now := s.now()
	if err := s.users.UpdateSavings(ctx, userID, enabled, goal, now); err != nil {
		return core.Profile{}, fmt.Errorf("update savings: %w", err)
	}
	emit(ctx, s.notifier, userID, core.ChangeSavings, userID, "", now)

	p.MonthlySavingsEnabled = enabled
	p.MonthlySavingsGoal = goal
	p.UpdatedAt = now
	return p, nil
}

// ListProfiles returns one page of profiles matching search. Pages start at 1.
func (s *MembershipService) ListProfiles(ctx context.Context, search string, page int) (storage.ProfilePage, error) {
	if page < 1 {
		page = 1
	}
	res, err := s.users.ListProfiles(ctx, search, AdminPageSize, (page-1)*AdminPageSize)
	if err != nil {
		return storage.ProfilePage{}, fmt.Errorf("list profiles: %w", err)
	}
	return res, nil
}
