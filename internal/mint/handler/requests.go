package handler

import (
	"github.com/google/uuid"

	dErrors "certify/pkg/domain-errors"
	strutil "certify/pkg/platform/strings"
	"certify/pkg/platform/validation"
	validate "certify/pkg/validation"
)

// JobIDsRequest names the jobs to retry or purge.
type JobIDsRequest struct {
	JobIDs []string `json:"job_ids" validate:"required,min=1,dive,uuid"`
}

func (r *JobIDsRequest) Normalize() {
	if r == nil {
		return
	}
	r.JobIDs = strutil.DedupeAndTrimLower(r.JobIDs)
}

func (r *JobIDsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckSliceCount("job_ids", len(r.JobIDs), validation.MaxJobIDs); err != nil {
		return err
	}
	return validate.Validate(r)
}

// IDs returns the parsed job IDs. Call after Validate.
func (r *JobIDsRequest) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.JobIDs))
	for _, raw := range r.JobIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
