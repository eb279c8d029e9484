package plans

import (
	"math/rand"
	"time"

	"github.com/h2linker/sendqueue/internal/enum"
)

type Features struct {
	CloudSending   bool
	MaskUserAgent  bool
	DNSBounceCheck bool
	AIEmailWriter  bool
	SendWindow     bool
}

type PlanConfig struct {
	Tier          enum.PlanTier
	DailyEmails   int
	MaxQueueSize  int
	MaxTemplates  int
	DelayStrategy enum.DelayStrategy
	SendingMethod enum.SendingMethod
	Features      Features
}

type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// EscalationThreshold is the share of yesterday's effective limit a sender has to use before the limit grows.
const EscalationThreshold = 0.8

const DefaultRiskProfile = enum.RiskProfileConservative

var planTable = map[enum.PlanTier]PlanConfig{
	enum.PlanFree: {
		Tier:          enum.PlanFree,
		DailyEmails:   5,
		MaxQueueSize:  10,
		MaxTemplates:  1,
		DelayStrategy: enum.DelayStrategyNone,
		SendingMethod: enum.SendingMethodStatic,
	},
	enum.PlanGold: {
		Tier:          enum.PlanGold,
		DailyEmails:   150,
		MaxQueueSize:  500,
		MaxTemplates:  3,
		DelayStrategy: enum.DelayStrategyFixed,
		SendingMethod: enum.SendingMethodStatic,
		Features: Features{
			CloudSending:   true,
			MaskUserAgent:  true,
			DNSBounceCheck: true,
		},
	},
	enum.PlanDiamond: {
		Tier:          enum.PlanDiamond,
		DailyEmails:   350,
		MaxQueueSize:  9999,
		MaxTemplates:  10,
		DelayStrategy: enum.DelayStrategyFixed,
		SendingMethod: enum.SendingMethodStatic,
		Features: Features{
			CloudSending:   true,
			MaskUserAgent:  true,
			DNSBounceCheck: true,
			SendWindow:     true,
		},
	},
	enum.PlanBlack: {
		Tier:          enum.PlanBlack,
		DailyEmails:   450,
		MaxQueueSize:  9999,
		MaxTemplates:  999,
		DelayStrategy: enum.DelayStrategyHuman,
		SendingMethod: enum.SendingMethodDynamic,
		Features: Features{
			CloudSending:   true,
			MaskUserAgent:  true,
			DNSBounceCheck: true,
			AIEmailWriter:  true,
		},
	},
}

var delayTable = map[enum.PlanTier]DelayRange{
	enum.PlanFree:    {Min: 0, Max: 0},
	enum.PlanGold:    {Min: 15 * time.Second, Max: 15 * time.Second},
	enum.PlanDiamond: {Min: 15 * time.Second, Max: 45 * time.Second},
	enum.PlanBlack:   {Min: 60 * time.Second, Max: 300 * time.Second},
}

var warmupSeeds = map[enum.RiskProfile]int{
	enum.RiskProfileConservative: 50,
	enum.RiskProfileStandard:     100,
	enum.RiskProfileAggressive:   150,
}

var warmupIncrements = map[enum.RiskProfile]int{
	enum.RiskProfileConservative: 20,
	enum.RiskProfileStandard:     50,
	enum.RiskProfileAggressive:   75,
}

// Get returns the plan configuration, falling back to free for unknown tiers.
func Get(tier enum.PlanTier) PlanConfig {
	if cfg, ok := planTable[tier]; ok {
		return cfg
	}
	return planTable[enum.PlanFree]
}

func All() []PlanConfig {
	return []PlanConfig{
		planTable[enum.PlanFree],
		planTable[enum.PlanGold],
		planTable[enum.PlanDiamond],
		planTable[enum.PlanBlack],
	}
}

func DailyCap(tier enum.PlanTier) int {
	return Get(tier).DailyEmails
}

func MaxQueueSize(tier enum.PlanTier) int {
	return Get(tier).MaxQueueSize
}

func SendingMethodFor(tier enum.PlanTier) enum.SendingMethod {
	return Get(tier).SendingMethod
}

// IsPremium reports whether the tier may run radar scans.
func IsPremium(tier enum.PlanTier) bool {
	return tier == enum.PlanDiamond || tier == enum.PlanBlack
}

// CloudTiers lists the tiers the backend drains on a schedule.
func CloudTiers() []enum.PlanTier {
	var tiers []enum.PlanTier
	for _, cfg := range All() {
		if cfg.Features.CloudSending {
			tiers = append(tiers, cfg.Tier)
		}
	}
	return tiers
}

// PaidTiers are the tiers that go through warm-up.
func PaidTiers() []enum.PlanTier {
	return []enum.PlanTier{enum.PlanGold, enum.PlanDiamond, enum.PlanBlack}
}

func Delay(tier enum.PlanTier) DelayRange {
	if d, ok := delayTable[Get(tier).Tier]; ok {
		return d
	}
	return DelayRange{}
}

// InterSendDelay picks the pause before the next attempt. Ranges are inclusive on both ends.
func InterSendDelay(tier enum.PlanTier, rng *rand.Rand) time.Duration {
	d := Delay(tier)
	if d.Max <= d.Min {
		return d.Min
	}
	spanMs := int64((d.Max - d.Min) / time.Millisecond)
	var offset int64
	if rng != nil {
		offset = rng.Int63n(spanMs + 1)
	} else {
		offset = rand.Int63n(spanMs + 1)
	}
	return d.Min + time.Duration(offset)*time.Millisecond
}

// WarmupSeed is the first daily limit for a risk profile. Unknown profiles get the conservative seed.
func WarmupSeed(profile enum.RiskProfile) int {
	if v, ok := warmupSeeds[profile]; ok {
		return v
	}
	return warmupSeeds[DefaultRiskProfile]
}

func WarmupIncrement(profile enum.RiskProfile) int {
	if v, ok := warmupIncrements[profile]; ok {
		return v
	}
	return warmupIncrements[DefaultRiskProfile]
}

// CurrentLimit resolves the warm-up allowance before the plan cap is applied.
func CurrentLimit(tier enum.PlanTier, current *int, profile *enum.RiskProfile) int {
	planMax := DailyCap(tier)
	if Get(tier).Tier == enum.PlanFree {
		return planMax
	}
	if current != nil {
		return *current
	}
	if profile != nil && profile.Valid() {
		return WarmupSeed(*profile)
	}
	return WarmupSeed(DefaultRiskProfile)
}

// EffectiveLimit is min(current warm-up allowance, plan max). Free users always get the flat cap.
func EffectiveLimit(tier enum.PlanTier, current *int, profile *enum.RiskProfile) int {
	planMax := DailyCap(tier)
	limit := CurrentLimit(tier, current, profile)
	if limit > planMax {
		return planMax
	}
	if limit < 0 {
		return 0
	}
	return limit
}

func Phase(tier enum.PlanTier, current *int, profile *enum.RiskProfile) enum.WarmupPhase {
	if Get(tier).Tier != enum.PlanFree && (profile == nil || !profile.Valid()) {
		return enum.WarmupPhaseNoProfile
	}
	if CurrentLimit(tier, current, profile) >= DailyCap(tier) {
		return enum.WarmupPhaseMaxSpeed
	}
	return enum.WarmupPhaseWarmingUp
}

// ShouldEscalate reports whether yesterday's volume reached the escalation threshold of the effective limit.
func ShouldEscalate(previousDaySent, effectiveLimit int) bool {
	if effectiveLimit <= 0 {
		return false
	}
	return float64(previousDaySent) >= EscalationThreshold*float64(effectiveLimit)
}

// InSendWindow reports whether hour falls inside the tier's allowed local sending hours.
func InSendWindow(tier enum.PlanTier, hour, startHour, endHour int) bool {
	if !Get(tier).Features.SendWindow {
		return true
	}
	return hour >= startHour && hour < endHour
}
