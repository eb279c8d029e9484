package models

import (
	"github.com/pkg/errors"

	apperrors "github.com/h2linker/sendqueue/internal/errors"
)

// JobRef is either a PublicJobRef or a ManualJobRef.
type JobRef interface {
	isJobRef()
	ID() string
}

type PublicJobRef struct {
	JobID string
}

type ManualJobRef struct {
	ManualJobID string
}

func (PublicJobRef) isJobRef() {}
func (ManualJobRef) isJobRef() {}

func (r PublicJobRef) ID() string { return r.JobID }
func (r ManualJobRef) ID() string { return r.ManualJobID }

func NewJobRef(jobId, manualJobId *string) (JobRef, error) {
	hasPublic := jobId != nil && *jobId != ""
	hasManual := manualJobId != nil && *manualJobId != ""

	switch {
	case hasPublic && !hasManual:
		return PublicJobRef{JobID: *jobId}, nil
	case hasManual && !hasPublic:
		return ManualJobRef{ManualJobID: *manualJobId}, nil
	default:
		return nil, errors.WithStack(apperrors.ErrInvalidJobReference)
	}
}
