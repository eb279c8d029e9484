package enum

type RiskProfile string

const (
	RiskProfileConservative RiskProfile = "conservative"
	RiskProfileStandard     RiskProfile = "standard"
	RiskProfileAggressive   RiskProfile = "aggressive"
)

func (t RiskProfile) String() string {
	return string(t)
}

func (t RiskProfile) Valid() bool {
	switch t {
	case RiskProfileConservative, RiskProfileStandard, RiskProfileAggressive:
		return true
	default:
		return false
	}
}

type WarmupPhase string

const (
	WarmupPhaseNoProfile WarmupPhase = "no_profile"
	WarmupPhaseWarmingUp WarmupPhase = "warming_up"
	WarmupPhaseMaxSpeed  WarmupPhase = "max_speed"
)

func (t WarmupPhase) String() string {
	return string(t)
}
