// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package wire defines the JSON frames exchanged between the server and
// its peers: the six client-originating commands and the reply and
// broadcast shapes the server emits in response to them.
package wire

import "encoding/json"

// Command names recognized by the dispatcher.
const (
	CmdInit                  = "init"
	CmdRequestSwapCommission = "request_swap_commission"
	CmdCreateOrder           = "create_order"
	CmdDeleteOrder           = "delete_order"
	CmdCreateTrade           = "create_trade"
	CmdUpdateTrade           = "update_trade"
)

// Reply names the server writes to the `reply` field.
const (
	ReplyInitSuccess                  = "init_success"
	ReplyRequestSwapCommissionSuccess = "request_swap_commission_success"
	ReplyCreateOrderSuccess           = "create_order_success"
	ReplyCreateOrder                  = "create_order"
	ReplyDeleteOrderSuccess           = "delete_order_success"
	ReplyDeleteOrder                  = "delete_order"
	ReplyCreateTradeSuccess           = "create_trade_success"
	ReplyCreateTrade                  = "create_trade"
	ReplyCreateTradeFailed            = "create_trade_failed"
	ReplyUpdateTradeSuccess           = "update_trade_success"
	ReplyUpdateTrade                  = "update_trade"
)

// Envelope is the minimal shape every inbound frame must satisfy to be
// dispatched: a command name. Everything else is command-specific and is
// re-decoded from the same raw bytes by the handler for that command.
type Envelope struct {
	Command string `json:"command"`
}

// CurAddrs is one currency's address group, as sent by init and
// request_swap_commission. The currency grouping itself is informational;
// the dispatcher only extracts the addresses.
type CurAddrs struct {
	Addrs []string `json:"addrs"`
}

// InitCommand is the payload of an `init` frame.
type InitCommand struct {
	Curs []CurAddrs `json:"curs"`
}

// RequestSwapCommissionCommand is the payload of a
// `request_swap_commission` frame. Identical shape to InitCommand; kept as
// a distinct type since the two commands are wire-unrelated.
type RequestSwapCommissionCommand struct {
	Curs []CurAddrs `json:"curs"`
}

// CreateOrderCommand is the payload of a `create_order` frame. Order is
// left as a raw message so every field the client sent - including ones
// this server has no opinion about - survives verbatim into the stored
// Order and back out to every peer.
type CreateOrderCommand struct {
	Order json.RawMessage `json:"order"`
}

// DeleteOrderCommand is the payload of a `delete_order` frame.
type DeleteOrderCommand struct {
	ID int64 `json:"id"`
}

// CreateTradeCommand is the payload of a `create_trade` frame.
type CreateTradeCommand struct {
	OrderID int64  `json:"orderId"`
	Address string `json:"address"`
}

// UpdateTradeCommand is the payload of an `update_trade` frame.
type UpdateTradeCommand struct {
	Trade TradeUpdate `json:"trade"`
}

// TradeUpdate carries the seven opaque slots and the two commission flags
// an `update_trade` command supplies. The commission field names are
// spelled differently than the persisted Trade's own field names; this is
// part of the wire contract and must not be "corrected".
type TradeUpdate struct {
	ID                              int64  `json:"id"`
	SecretHash                      string `json:"secretHash"`
	ContractInitiator               string `json:"contractInitiator"`
	ContractParticipant             string `json:"contractParticipant"`
	InitiatorContractTransaction    string `json:"initiatorContractTransaction"`
	ParticipantContractTransaction  string `json:"participantContractTransaction"`
	InitiatorRedemptionTransaction  string `json:"initiatorRedemptionTransaction"`
	ParticipantRedemptionTransaction string `json:"participantRedemptionTransaction"`
	CommissionInitiatorPaid        bool   `json:"commissionInitiatorPaid"`
	CommissionParticipantPaid      bool   `json:"commissionParticipantPaid"`
}

// InitSuccessReply answers an `init` command.
type InitSuccessReply struct {
	Reply       string            `json:"reply"`
	IsActual    bool              `json:"isActual"`
	Orders      []json.RawMessage `json:"orders"`
	Trades      []json.RawMessage `json:"trades"`
	Commissions []json.RawMessage `json:"commissions"`
}

// RequestSwapCommissionSuccessReply answers a `request_swap_commission`
// command. Commissions is always empty; see DESIGN.md.
type RequestSwapCommissionSuccessReply struct {
	Reply       string            `json:"reply"`
	Commissions []json.RawMessage `json:"commissions"`
}

// OrderReply carries a full order payload, used for both
// create_order_success (to the creator) and create_order (broadcast to
// everyone else).
type OrderReply struct {
	Reply string          `json:"reply"`
	Order json.RawMessage `json:"order"`
}

// DeleteOrderReply carries only the id, used for both delete_order_success
// and the delete_order broadcast.
type DeleteOrderReply struct {
	Reply string `json:"reply"`
	ID    int64  `json:"id"`
}

// TradeReply carries a full trade payload, used for create_trade_success,
// create_trade, and update_trade.
type TradeReply struct {
	Reply string          `json:"reply"`
	Trade json.RawMessage `json:"trade"`
}

// CreateTradeFailedReply is sent when create_trade references an order
// that is no longer present. The "reasone" field name is misspelled in the
// wire contract and must be preserved verbatim.
type CreateTradeFailedReply struct {
	Reply   string `json:"reply"`
	Reasone string `json:"reasone"`
}

// UpdateTradeSuccessReply acknowledges an update_trade command, sent to
// the originator unconditionally.
type UpdateTradeSuccessReply struct {
	Reply string `json:"reply"`
}
