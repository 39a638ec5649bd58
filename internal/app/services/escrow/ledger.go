// Package escrow computes payout splits for settled bounties. All arithmetic
// is integer credits with floor division; fractional credits are absorbed by
// the platform fee side so a settlement never pays out more than the reward.
package escrow

import (
	"github.com/taskforge/platform/internal/app/domain/dispute"
	"github.com/taskforge/platform/internal/app/domain/fault"
)

// Platform fee and default split, in basis points.
const (
	FeeBPS          = 1000 // 10% of the agent share
	DefaultSplitBPS = 5000 // 50/50 when a split resolution omits the ratio
	FullBPS         = 10000
)

// Payout is the three-way division of one escrowed reward. The parts always
// sum to the original reward amount.
type Payout struct {
	AgentAmount     int64
	PublisherRefund int64
	PlatformFee     int64
}

// Total returns the sum of the three legs.
func (p Payout) Total() int64 {
	return p.AgentAmount + p.PublisherRefund + p.PlatformFee
}

// Award computes the split for a regular award: the agent receives the reward
// minus the platform fee.
func Award(reward int64) (Payout, error) {
	return Resolve(reward, dispute.StatusResolvedAgentFull, 0)
}

// Refund computes the split for a full publisher refund.
func Refund(reward int64) (Payout, error) {
	return Resolve(reward, dispute.StatusResolvedPublisher, 0)
}

// Resolve computes the split for a dispute outcome. splitBPS applies only to
// resolved_split and defaults to DefaultSplitBPS when zero.
func Resolve(reward int64, outcome dispute.Status, splitBPS int) (Payout, error) {
	if reward < 0 {
		return Payout{}, fault.Validation("reward amount must be non-negative")
	}

	switch outcome {
	case dispute.StatusResolvedPublisher:
		return Payout{PublisherRefund: reward}, nil

	case dispute.StatusResolvedAgentFull:
		fee := reward * FeeBPS / FullBPS
		return Payout{
			AgentAmount: reward - fee,
			PlatformFee: fee,
		}, nil

	case dispute.StatusResolvedSplit:
		if splitBPS == 0 {
			splitBPS = DefaultSplitBPS
		}
		if splitBPS < 0 || splitBPS > FullBPS {
			return Payout{}, fault.Validation("split must be between 0 and %d basis points", FullBPS)
		}
		agentShare := reward * int64(splitBPS) / FullBPS
		fee := agentShare * FeeBPS / FullBPS
		return Payout{
			AgentAmount:     agentShare - fee,
			PublisherRefund: reward - agentShare,
			PlatformFee:     fee,
		}, nil
	}

	return Payout{}, fault.Validation("outcome %s does not settle escrow", outcome)
}
