package entitlements

import (
	"errors"
	"fmt"
	"strings"
)

// Family groups plans that are sold to the same audience. The tier rank is a
// single total order across families; comparing ranks across families is
// almost certainly not what a caller wants, so the coordinator flags it.
type Family string

const (
	FamilyB2C     Family = "b2c"
	FamilyTrainer Family = "trainer"
	FamilyAcademy Family = "academy"
)

const (
	PlanFree           = "free"
	PlanMonthly        = "monthly"
	PlanYearly         = "yearly"
	PlanTrainerMonthly = "trainer_monthly"
	PlanAcademyMonthly = "academy_monthly"
)

// ErrUnknownPlan is returned when a plan name has no catalog entry. This is a
// configuration error and is surfaced to the caller instead of being mapped
// to free tier.
var ErrUnknownPlan = errors.New("entitlements: unknown plan")

// Plan is one static catalog entry. DailyVoiceSeconds is the per-day voice
// allowance in whole seconds; minutes appear only at presentation boundaries.
type Plan struct {
	Name              string
	Family            Family
	Rank              int
	BillingInterval   string
	DailyVoiceSeconds int64
	PriceCents        int64
}

// IsPaid reports whether the plan grants premium features.
func (p Plan) IsPaid() bool {
	return p.Rank > 0
}

var catalog = map[string]Plan{
	PlanFree: {
		Name:   PlanFree,
		Family: FamilyB2C,
		Rank:   0,
	},
	PlanMonthly: {
		Name:              PlanMonthly,
		Family:            FamilyB2C,
		Rank:              4,
		BillingInterval:   "month",
		DailyVoiceSeconds: 900,
		PriceCents:        1990,
	},
	PlanYearly: {
		Name:              PlanYearly,
		Family:            FamilyB2C,
		Rank:              5,
		BillingInterval:   "year",
		DailyVoiceSeconds: 1200,
		PriceCents:        19900,
	},
	PlanTrainerMonthly: {
		Name:              PlanTrainerMonthly,
		Family:            FamilyTrainer,
		Rank:              6,
		BillingInterval:   "month",
		DailyVoiceSeconds: 1800,
		PriceCents:        4990,
	},
	PlanAcademyMonthly: {
		Name:              PlanAcademyMonthly,
		Family:            FamilyAcademy,
		Rank:              7,
		BillingInterval:   "month",
		DailyVoiceSeconds: 3600,
		PriceCents:        9990,
	},
}

// LookupPlan resolves a plan name against the static catalog.
func LookupPlan(name string) (Plan, error) {
	p, ok := catalog[NormalizePlan(name)]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	return p, nil
}

// NormalizePlan lowercases and trims a plan name. Unknown names pass through
// so LookupPlan can report them.
func NormalizePlan(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PlanRank returns the tier rank for a plan name, treating unknown names as
// free tier. Use LookupPlan when an unknown plan must be an error.
func PlanRank(name string) int {
	p, ok := catalog[NormalizePlan(name)]
	if !ok {
		return 0
	}
	return p.Rank
}

// SameFamily reports whether two plans are sold to the same audience.
// Cross-family rank comparisons are suspect and are logged by callers.
func SameFamily(a, b string) bool {
	pa, oka := catalog[NormalizePlan(a)]
	pb, okb := catalog[NormalizePlan(b)]
	return oka && okb && pa.Family == pb.Family
}

// HasUpgrade reports whether the catalog offers a higher-ranked plan in the
// same family.
func HasUpgrade(name string) bool {
	p, ok := catalog[NormalizePlan(name)]
	if !ok {
		return true
	}
	for _, other := range catalog {
		if other.Family == p.Family && other.Rank > p.Rank {
			return true
		}
	}
	return false
}

// ListPlans returns the purchasable catalog entries ordered by rank.
func ListPlans() []Plan {
	out := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		if p.IsPaid() {
			out = append(out, p)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Rank < out[i].Rank {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
