package core

import (
	"math"
	"time"
)

// TrialDuration is the Pro trial granted at signup.
const TrialDuration = 7 * 24 * time.Hour

// MembershipChange is the set of membership columns a reconciliation writes.
type MembershipChange struct {
	IsPro          bool
	MembershipTier MembershipTier
	ProExpiresAt   *time.Time
	TrialStartedAt *time.Time
	TrialEndsAt    *time.Time
	// KeepTrial leaves the stored trial columns as they are.
	KeepTrial bool
}

// NewTrialProfile returns the profile created for a user seen for the
// first time: Pro until the end of the trial.
func NewTrialProfile(userID, displayName string, now time.Time) Profile {
	ends := now.Add(TrialDuration)
	started := now
	return Profile{
		UserID:         userID,
		DisplayName:    displayName,
		MembershipTier: TierPro,
		IsPro:          true,
		ProExpiresAt:   &ends,
		TrialStartedAt: &started,
		TrialEndsAt:    &ends,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reconcile decides whether the stored membership disagrees with the clock.
// It returns the change to persist and true, or false when the profile is
// already consistent.
func (p Profile) Reconcile(now time.Time) (MembershipChange, bool) {
	if p.ProExpiresAt == nil {
		return MembershipChange{}, false
	}
	expired := !now.Before(*p.ProExpiresAt)
	switch {
	case expired && (p.IsPro || p.MembershipTier != TierFree):
		return MembershipChange{IsPro: false, MembershipTier: TierFree}, true
	case !expired && !p.IsPro:
		return MembershipChange{
			IsPro:          true,
			MembershipTier: TierPro,
			ProExpiresAt:   p.ProExpiresAt,
			TrialStartedAt: p.TrialStartedAt,
			TrialEndsAt:    p.TrialEndsAt,
		}, true
	}
	return MembershipChange{}, false
}

// Apply returns a copy of p with the change written over it.
func (p Profile) Apply(c MembershipChange, now time.Time) Profile {
	p.IsPro = c.IsPro
	p.MembershipTier = c.MembershipTier
	p.ProExpiresAt = c.ProExpiresAt
	if !c.KeepTrial {
		p.TrialStartedAt = c.TrialStartedAt
		p.TrialEndsAt = c.TrialEndsAt
	}
	p.UpdatedAt = now
	return p
}

// PermanentPro is the change written by an explicit upgrade.
func PermanentPro() MembershipChange {
	return MembershipChange{IsPro: true, MembershipTier: TierPro}
}

// TimedMembership is the administrative override. Only tier and expiry
// change; trial columns are kept.
func TimedMembership(isPro bool, expiresAt *time.Time) MembershipChange {
	tier := TierFree
	if isPro {
		tier = TierPro
	}
	return MembershipChange{IsPro: isPro, MembershipTier: tier, ProExpiresAt: expiresAt, KeepTrial: true}
}

// IsTrial reports whether the trial is still running at now.
func (p Profile) IsTrial(now time.Time) bool {
	return p.TrialEndsAt != nil && now.Before(*p.TrialEndsAt)
}

// TrialDaysLeft rounds the remaining trial up to whole days, 0 outside a trial.
func (p Profile) TrialDaysLeft(now time.Time) int {
	if !p.IsTrial(now) {
		return 0
	}
	days := math.Ceil(p.TrialEndsAt.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// IsPermanentPro reports a Pro membership without expiry.
func (p Profile) IsPermanentPro() bool {
	return p.IsPro && p.ProExpiresAt == nil
}
