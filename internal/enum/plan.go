package enum

type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanGold    PlanTier = "gold"
	PlanDiamond PlanTier = "diamond"
	PlanBlack   PlanTier = "black"
)

func (t PlanTier) String() string {
	return string(t)
}

// GetPlanTier maps unknown values to the free tier.
func GetPlanTier(s string) PlanTier {
	switch PlanTier(s) {
	case PlanGold, PlanDiamond, PlanBlack:
		return PlanTier(s)
	default:
		return PlanFree
	}
}

type SendingMethod string

const (
	SendingMethodStatic  SendingMethod = "static"
	SendingMethodDynamic SendingMethod = "dynamic"
)

func (t SendingMethod) String() string {
	return string(t)
}

type DelayStrategy string

const (
	DelayStrategyNone  DelayStrategy = "none"
	DelayStrategyFixed DelayStrategy = "fixed"
	DelayStrategyHuman DelayStrategy = "human"
)

func (t DelayStrategy) String() string {
	return string(t)
}

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (t UserRole) String() string {
	return string(t)
}
