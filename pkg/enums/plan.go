package enums

import "fmt"

// PlanTier maps to the subscription plans sold by the billing subsystem.
type PlanTier string

const (
	PlanFree      PlanTier = "free"
	PlanStarter   PlanTier = "starter"
	PlanPro       PlanTier = "pro"
	PlanUnlimited PlanTier = "unlimited"
)

// UnlimitedClips is the sentinel limit for plans without a monthly cap.
const UnlimitedClips = -1

var validPlanTiers = []PlanTier{
	PlanFree,
	PlanStarter,
	PlanPro,
	PlanUnlimited,
}

var planClipLimits = map[PlanTier]int{
	PlanFree:      3,
	PlanStarter:   10,
	PlanPro:       50,
	PlanUnlimited: UnlimitedClips,
}

// String returns the literal string for the plan.
func (p PlanTier) String() string {
	return string(p)
}

// IsValid reports whether the plan is known.
func (p PlanTier) IsValid() bool {
	for _, candidate := range validPlanTiers {
		if candidate == p {
			return true
		}
	}
	return false
}

// ClipLimit returns the monthly clip allowance for the plan.
func (p PlanTier) ClipLimit() int {
	if limit, ok := planClipLimits[p]; ok {
		return limit
	}
	return planClipLimits[PlanFree]
}

// ParsePlanTier converts raw input into a PlanTier.
func ParsePlanTier(value string) (PlanTier, error) {
	for _, candidate := range validPlanTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan tier %q", value)
}
