package models

import "certify/internal/anchor"

// Policy holds the queue priority constants. Higher priority is dequeued sooner.
type Policy struct {
	High               int
	Normal             int
	Low                int
	HighScoreThreshold int
}

// DefaultPolicy returns the stock priorities.
func DefaultPolicy() Policy {
	return Policy{
		High:               100,
		Normal:             50,
		Low:                10,
		HighScoreThreshold: 95,
	}
}

// WalletDisconnected is the priority for jobs queued because no wallet is available.
func (p Policy) WalletDisconnected() int {
	return p.Low
}

// NotAuthorized is the priority for jobs queued because the signer lacks the minter role.
func (p Policy) NotAuthorized() int {
	return p.Normal
}

// MintFailure is the priority for jobs queued after an immediate mint failed.
func (p Policy) MintFailure(score int) int {
	if score >= p.HighScoreThreshold {
		return p.High
	}
	return p.Normal
}

// Demotion returns the priority a job should drop to after failing with
// kind inside the worker, or nil to keep its current priority. Jobs that
// need a human to grant a role stop competing with jobs that can succeed.
func (p Policy) Demotion(kind anchor.Kind) *int {
	if kind == anchor.KindNotAuthorized {
		low := p.Low
		return &low
	}
	return nil
}
