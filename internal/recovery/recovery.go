// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package recovery rebuilds entity store state at startup by replaying
// the durable command log through the same mutation primitives the
// dispatcher uses, in the order the commands were originally applied.
// It produces no network output and never re-appends what it reads.
package recovery

import (
	"encoding/json"

	"github.com/22388o/atom-engine/internal/dex"
	"github.com/22388o/atom-engine/internal/store"
	"github.com/22388o/atom-engine/internal/walog"
	"github.com/22388o/atom-engine/internal/wire"
)

// Replay reads every line in the log at path and applies it to st. A log
// that does not exist yet is a normal cold start, not an error. Lines
// that fail to decode are logged and skipped, matching the dispatcher's
// own tolerance of malformed input - the log is append-only and was
// itself only ever fed commands the dispatcher had already accepted, so
// in practice this path is only exercised by a log damaged after the
// fact.
func Replay(path string, st *store.Store, log dex.Logger) error {
	n := 0
	found, err := walog.Lines(path, log, func(raw []byte) {
		if applyLine(raw, st, log) {
			n++
		}
	})
	if err != nil {
		return err
	}
	if found {
		log.Infof("recovered %d commands from %s", n, path)
	}
	return nil
}

// applyLine decodes one logged command and applies it to st, reporting
// whether it recognized and applied the command.
func applyLine(raw []byte, st *store.Store, log dex.Logger) bool {
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("skipping unparsable command in log: %s", raw)
		return false
	}

	switch env.Command {
	case wire.CmdCreateOrder:
		var cmd wire.CreateOrderCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Warnf("skipping malformed create_order in log: %v", err)
			return false
		}
		var order store.Order
		if err := json.Unmarshal(cmd.Order, &order); err != nil {
			log.Warnf("skipping malformed order payload in log: %v", err)
			return false
		}
		st.CreateOrder(&order)

	case wire.CmdDeleteOrder:
		var cmd wire.DeleteOrderCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Warnf("skipping malformed delete_order in log: %v", err)
			return false
		}
		st.DeleteOrder(cmd.ID)

	case wire.CmdCreateTrade:
		var cmd wire.CreateTradeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Warnf("skipping malformed create_trade in log: %v", err)
			return false
		}
		st.CreateTrade(cmd.OrderID, cmd.Address)

	case wire.CmdUpdateTrade:
		var cmd wire.UpdateTradeCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Warnf("skipping malformed update_trade in log: %v", err)
			return false
		}
		st.UpdateTrade(cmd.Trade.ID, func(t *store.Trade) {
			t.ApplyUpdate(store.TradeUpdateFields{
				SecretHash:                       cmd.Trade.SecretHash,
				ContractInitiator:                cmd.Trade.ContractInitiator,
				ContractParticipant:              cmd.Trade.ContractParticipant,
				InitiatorContractTransaction:     cmd.Trade.InitiatorContractTransaction,
				ParticipantContractTransaction:   cmd.Trade.ParticipantContractTransaction,
				InitiatorRedemptionTransaction:   cmd.Trade.InitiatorRedemptionTransaction,
				ParticipantRedemptionTransaction: cmd.Trade.ParticipantRedemptionTransaction,
				CommissionInitiatorPaid:          cmd.Trade.CommissionInitiatorPaid,
				CommissionParticipantPaid:        cmd.Trade.CommissionParticipantPaid,
			})
		})

	default:
		log.Warnf("skipping unrecognized command %q in log", env.Command)
		return false
	}
	return true
}
