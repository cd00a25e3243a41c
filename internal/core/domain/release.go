package domain

import (
	"time"

	"github.com/segmentio/ksuid"
)

// =============================================================================
// Release
// =============================================================================

// Release records a successful deploy: which image reached which target, and
// the run that produced it. Releases are append-only; the newest release for
// an app is the one currently serving.
type Release struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	RunID     string    `json:"run_id"`
	CommitSHA string    `json:"commit_sha"`
	ImageRef  string    `json:"image_ref"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRelease creates a release from a completed run.
func NewRelease(run *Run, target string) *Release {
	return &Release{
		ID:        "rel_" + ksuid.New().String(),
		AppID:     run.AppID,
		RunID:     run.ID,
		CommitSHA: run.CommitSHA,
		ImageRef:  run.ImageRef,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
}
