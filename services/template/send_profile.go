package template

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/h2linker/sendqueue/internal/enum"
)

type SendProfile struct {
	XMailer   string
	UserAgent string
	DedupeId  string
}

const outlookClient = "Microsoft Outlook 16.0"

var clientPool = []string{
	"iPhone Mail (20A362)",
	"Android Mail",
	"Mozilla Thunderbird",
	outlookClient,
}

func PickSendProfile(tier enum.PlanTier, rng *rand.Rand) SendProfile {
	switch tier {
	case enum.PlanGold:
		return SendProfile{XMailer: outlookClient, UserAgent: outlookClient}
	case enum.PlanDiamond, enum.PlanBlack:
		client := clientPool[rng.Intn(len(clientPool))]
		return SendProfile{XMailer: client, UserAgent: client, DedupeId: uuid.NewString()}
	default:
		return SendProfile{}
	}
}

func (p SendProfile) Headers() map[string]string {
	headers := map[string]string{}
	if p.XMailer != "" {
		headers["X-Mailer"] = p.XMailer
	}
	if p.UserAgent != "" {
		headers["User-Agent"] = p.UserAgent
	}
	return headers
}
