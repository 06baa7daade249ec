// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package store

// Trade is an accepted order progressing through an HTLC-style atomic
// swap. Order is the consumed order record itself, moved out of the order
// table in the same step that creates the trade.
type Trade struct {
	ID               int64  `json:"id"`
	Order            *Order `json:"order"`
	InitiatorAddress string `json:"initiatorAddress"`

	SecretHash                       string `json:"secretHash"`
	ContractInitiator                string `json:"contractInitiator"`
	ContractParticipant              string `json:"contractParticipant"`
	InitiatorContractTransaction     string `json:"initiatorContractTransaction"`
	ParticipantContractTransaction   string `json:"participantContractTransaction"`
	InitiatorRedemptionTransaction   string `json:"initiatorRedemptionTransaction"`
	ParticipantRedemptionTransaction string `json:"participantRedemptionTransaction"`

	InitiatorCommissionPaid   bool `json:"initiatorCommissionPaid"`
	ParticipantCommissionPaid bool `json:"participantCommissionPaid"`
}

// MakerAddress is the address of the peer that created the order this
// trade was accepted from.
func (t *Trade) MakerAddress() string {
	if t.Order == nil {
		return ""
	}
	return t.Order.Address
}

// clone returns a deep-enough copy of t for snapshotting: the Order
// pointer is cloned too so callers can't mutate engine state through a
// returned snapshot.
func (t *Trade) clone() *Trade {
	cp := *t
	if t.Order != nil {
		ord := *t.Order
		cp.Order = &ord
	}
	return &cp
}

// TradeUpdateFields is the set of fields an update_trade command may
// carry. It exists so store does not need to import the wire package;
// the dispatcher fills one in from the decoded command.
type TradeUpdateFields struct {
	SecretHash                       string
	ContractInitiator                string
	ContractParticipant              string
	InitiatorContractTransaction     string
	ParticipantContractTransaction   string
	InitiatorRedemptionTransaction   string
	ParticipantRedemptionTransaction string
	CommissionInitiatorPaid          bool
	CommissionParticipantPaid        bool
}

// ApplyUpdate overwrites the seven opaque slots from f and OR's in the two
// commission flags: a flag already true never reverts to false even if f
// carries false.
func (t *Trade) ApplyUpdate(f TradeUpdateFields) {
	t.SecretHash = f.SecretHash
	t.ContractInitiator = f.ContractInitiator
	t.ContractParticipant = f.ContractParticipant
	t.InitiatorContractTransaction = f.InitiatorContractTransaction
	t.ParticipantContractTransaction = f.ParticipantContractTransaction
	t.InitiatorRedemptionTransaction = f.InitiatorRedemptionTransaction
	t.ParticipantRedemptionTransaction = f.ParticipantRedemptionTransaction
	if !t.InitiatorCommissionPaid {
		t.InitiatorCommissionPaid = f.CommissionInitiatorPaid
	}
	if !t.ParticipantCommissionPaid {
		t.ParticipantCommissionPaid = f.CommissionParticipantPaid
	}
}
