package entitlements

import "time"

// Features is the flat premium grant. Any active paid plan enables all of
// them uniformly; per-plan feature differentiation is deliberately not
// modeled.
type Features struct {
	PhotoAnalysis   bool `json:"photo_analysis"`
	WorkoutAnalysis bool `json:"workout_analysis"`
	CustomWorkouts  bool `json:"custom_workouts"`
	TextChat        bool `json:"text_chat"`
	VoiceChat       bool `json:"voice_chat"`
}

// FeaturesForPlan returns the feature grant for a plan. Paid plans get the
// full flat grant.
func FeaturesForPlan(p Plan) Features {
	if !p.IsPaid() {
		return Features{}
	}
	return Features{
		PhotoAnalysis:   true,
		WorkoutAnalysis: true,
		CustomWorkouts:  true,
		TextChat:        true,
		VoiceChat:       true,
	}
}

// VoiceQuota is the resolved voice budget. Unlimited is a tagged variant:
// when set, the numeric balances are meaningless and must not be used for
// arithmetic. No infinity sentinels.
type VoiceQuota struct {
	Unlimited             bool       `json:"unlimited"`
	UnlimitedUntil        *time.Time `json:"unlimited_until,omitempty"`
	DailyLimitSeconds     int64      `json:"daily_limit_seconds"`
	DailyRemainingSeconds int64      `json:"daily_remaining_seconds"`
	BankedSeconds         int64      `json:"banked_seconds"`
}

// Snapshot is the resolved entitlement state for one user at one instant.
type Snapshot struct {
	Plan       string     `json:"plan"`
	Status     string     `json:"status"`
	Features   Features   `json:"features"`
	Voice      VoiceQuota `json:"voice"`
	CanUpgrade bool       `json:"can_upgrade"`
	PeriodEnd  *time.Time `json:"period_end,omitempty"`
}

// FreeSnapshot builds the free-tier fallback. Always a fresh value per call;
// a shared singleton here would leak state across requests.
func FreeSnapshot() *Snapshot {
	return &Snapshot{
		Plan:       PlanFree,
		Status:     "none",
		Features:   Features{},
		Voice:      VoiceQuota{},
		CanUpgrade: true,
	}
}
