package utils

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIdAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func GenerateNanoID(length int) string {
	id, err := gonanoid.Generate(nanoIdAlphabet, length)
	if err != nil {
		panic(err)
	}
	return id
}

func GenerateNanoIDWithPrefix(prefix string, length int) string {
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoID(length))
}

func NewTrackingId() string {
	return uuid.NewString()
}

// GenerateMessageID creates an RFC 5322 message id for the given sender domain.
func GenerateMessageID(domain, metadata string) string {
	timestamp := time.Now().UnixMicro()

	var hashComponent string
	if metadata != "" {
		hash := sha256.Sum256([]byte(metadata))
		hashComponent = fmt.Sprintf(".%x", hash[:4])
	}

	localPart := fmt.Sprintf("%d.%s%s", timestamp, GenerateNanoID(12), hashComponent)
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}
