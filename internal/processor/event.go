package processor

import (
	"encoding/json"
	"fmt"
)

// CheckSuiteEvent is the slice of a check_suite webhook payload the
// processor acts on.
type CheckSuiteEvent struct {
	Action         string
	Repo           string
	InstallationID int64
	CheckSuiteID   int64
	HeadSHA        string
	HeadBranch     string
	PullRequests   []PullRequestRef
}

// PullRequestRef identifies one pull request attached to a check suite.
type PullRequestRef struct {
	Number int
}

// ParseCheckSuiteEvent extracts and validates the fields needed for
// processing. A payload missing any of them can never be processed, so
// callers treat parse errors as permanent.
func ParseCheckSuiteEvent(payload []byte) (*CheckSuiteEvent, error) {
	var raw struct {
		Action     string `json:"action"`
		CheckSuite struct {
			ID           int64  `json:"id"`
			HeadSHA      string `json:"head_sha"`
			HeadBranch   string `json:"head_branch"`
			PullRequests []struct {
				Number int `json:"number"`
			} `json:"pull_requests"`
		} `json:"check_suite"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		Installation struct {
			ID int64 `json:"id"`
		} `json:"installation"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse check_suite payload: %w", err)
	}

	if raw.Repository.FullName == "" {
		return nil, fmt.Errorf("check_suite payload missing repository.full_name")
	}
	if raw.Installation.ID == 0 {
		return nil, fmt.Errorf("check_suite payload missing installation.id")
	}
	if raw.CheckSuite.ID == 0 {
		return nil, fmt.Errorf("check_suite payload missing check_suite.id")
	}
	if raw.CheckSuite.HeadSHA == "" {
		return nil, fmt.Errorf("check_suite payload missing check_suite.head_sha")
	}

	ev := &CheckSuiteEvent{
		Action:         raw.Action,
		Repo:           raw.Repository.FullName,
		InstallationID: raw.Installation.ID,
		CheckSuiteID:   raw.CheckSuite.ID,
		HeadSHA:        raw.CheckSuite.HeadSHA,
		HeadBranch:     raw.CheckSuite.HeadBranch,
	}
	for _, pr := range raw.CheckSuite.PullRequests {
		ev.PullRequests = append(ev.PullRequests, PullRequestRef{Number: pr.Number})
	}
	return ev, nil
}
