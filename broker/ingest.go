package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tarancss/broker/lib/intercom"
	"github.com/tarancss/broker/lib/msg"
	"github.com/tarancss/broker/lib/store"
	"github.com/tarancss/broker/lib/util"
)

// Replies to the wallet's asynchronous events.
const (
	notifyAck    = "Received NOTIFY"
	heartbeatAck = "Received HEARTBEAT"
)

// notifyMsg is the payload of a NOTIFY message: one observation of an on-chain transaction.
type notifyMsg struct {
	TxID          string    `json:"txid"`
	Coin          string    `json:"coin"`
	Confirmations int64     `json:"confirmations"`
	BlockHash     string    `json:"blockhash,omitempty"`
	Balances      []addrBal `json:"balances"`
}

// addrBal carries the amount received by one address, as an integer string in the coin's smallest
// unit.
type addrBal struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// attribution associates one observed address with the site user that owns it.
type attribution struct {
	address string
	userID  string
	balance string
}

// notifyHandler consumes one NOTIFY event. The whole state machine runs in a single database
// transaction serialized per txid, so a retransmission or an interleaved observation can never
// credit a user twice. A duplicate credit aborts the transaction but is acknowledged normally:
// the state is already what the wallet wants it to be, and a failure reply would make it
// retransmit forever.
func (b *Broker) notifyHandler(from intercom.Endpoint, payload []byte, reply intercom.ReplyFunc) {
	var n notifyMsg
	if err := json.Unmarshal(payload, &n); err != nil || n.TxID == "" {
		log.Printf("Dropping NOTIFY frame from endpoint %d: %v", from.ID, intercom.ErrFrameDecode)
		return // the dispatcher acknowledges with an empty reply
	}

	ctx, cancel := context.WithTimeout(context.Background(), intercom.ShutdownGrace)
	defer cancel()

	credits, err := b.ingest(ctx, n, payload)

	switch {
	case errors.Is(err, store.ErrDuplicateCredit):
		log.Printf("[%s] ERROR duplicate credit attempt for tx %s, transaction aborted", n.Coin, n.TxID)
		b.met.duplicates.Inc()

		_ = reply([]byte(notifyAck))
	case err != nil:
		log.Printf("[%s] Error processing NOTIFY for tx %s:%e", n.Coin, n.TxID, err)

		_ = reply([]byte("NOTIFY failed")) // the wallet may retransmit
	default:
		b.met.notifies.Inc()
		b.publishCredits(n.Coin, credits)

		_ = reply([]byte(notifyAck))
	}
}

// ingest applies the NOTIFY state machine and returns the credit events to publish. raw is the
// wire payload, kept on the job row for replaying and debugging.
func (b *Broker) ingest(ctx context.Context, n notifyMsg, raw []byte) ([]msg.CreditEvent, error) {
	var events []msg.CreditEvent

	err := b.db.WithTxn(ctx, n.TxID, func(t store.Txn) error {
		events = events[:0] // the backend may re-run the callback on a write conflict

		prev, err := t.GetTx(n.TxID)
		if err != nil && !errors.Is(err, store.ErrDataNotFound) {
			return err
		}

		existed := err == nil

		// confirmations are monotonic per txid: out-of-order deliveries never regress them
		confirms := uint64(0)
		if n.Confirmations > 0 {
			confirms = uint64(n.Confirmations)
		}

		wasComplete := false

		if existed {
			if prev.Confirms > confirms {
				confirms = prev.Confirms
			}

			wasComplete = prev.Complete
		}

		blockhash := prev.BlockHash
		if n.BlockHash != "" {
			blockhash = n.BlockHash
		}

		// open a job for transactions still working towards the threshold
		if !wasComplete && n.Confirmations >= 0 {
			if _, err := t.GetJob(n.TxID); errors.Is(err, store.ErrDataNotFound) {
				if err := t.InsertJob(store.WalletJob{
					Job:   n.TxID,
					State: store.JobObserved,
					Type:  n.Coin,
					Data:  raw,
				}); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}

		// attribute the observed addresses to site users; unknown addresses are skipped and a
		// transaction that already completed must never re-enter the credit branch
		var attrs []attribution

		if !wasComplete && n.Confirmations >= 0 && uint64(n.Confirmations) >= b.cfg.Threshold {
			seen := make(map[string]int)

			for _, ab := range n.Balances {
				a, err := t.FindAddress(ab.Address)
				if errors.Is(err, store.ErrAddrNotFound) {
					continue
				}

				if err != nil {
					return err
				}

				if i, ok := seen[ab.Address]; ok { // later entries overwrite
					attrs[i] = attribution{address: ab.Address, userID: a.UserID, balance: ab.Balance}

					continue
				}

				seen[ab.Address] = len(attrs)
				attrs = append(attrs, attribution{address: ab.Address, userID: a.UserID, balance: ab.Balance})
			}
		}

		// promote the job once attribution succeeded
		if len(attrs) > 0 {
			j, err := t.GetJob(n.TxID)
			if err != nil && !errors.Is(err, store.ErrDataNotFound) {
				return err
			}

			if err == nil && j.State == store.JobObserved {
				j.State = store.JobProcessed
				j.UserID = attrs[0].userID
				j.Result = "okay"

				if err := t.UpdateJob(j); err != nil {
					return err
				}
			}
		}

		// credit each attributed user: ledger row first, then the cached balance
		prec := b.cfg.Precision(n.Coin)

		for _, at := range attrs {
			amt, err := util.ParseUnits(at.balance, prec)
			if err != nil {
				return fmt.Errorf("bad balance %q for address %s: %w", at.balance, at.address, err)
			}

			if err := t.InsertCreditRow(store.WalletTx{
				TxID:      n.TxID,
				BlockHash: blockhash,
				TxType:    store.TxCredit,
				Confirms:  confirms,
				Complete:  true,
				Processed: true,
				UserID:    at.userID,
				Amount:    amt,
			}); err != nil {
				return err // ErrDuplicateCredit aborts the whole NOTIFY
			}

			if _, err := t.GetOrInitBalance(at.userID); err != nil {
				return err
			}

			if err := t.AddToBalance(at.userID, amt); err != nil {
				return err
			}

			events = append(events, msg.CreditEvent{
				Coin:   n.Coin,
				TxID:   n.TxID,
				UserID: at.userID,
				Amount: amt.StringFixed(prec),
			})
		}

		// finalize the observed row; complete latches and processed follows it
		complete := wasComplete || confirms >= b.cfg.Threshold

		return t.UpsertTxRow(store.WalletTx{
			TxID:      n.TxID,
			BlockHash: blockhash,
			TxType:    store.TxObserved,
			Confirms:  confirms,
			Complete:  complete,
			Processed: complete,
		})
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// publishCredits fans the credit events out to the site's message broker.
func (b *Broker) publishCredits(coin string, credits []msg.CreditEvent) {
	for _, c := range credits {
		b.met.credits.Inc()

		if b.mb == nil {
			continue
		}

		if err := b.mb.SendCredit(coin, c); err != nil {
			log.Printf("[%s] Error publishing credit event for tx %s:%e", coin, c.TxID, err)
		}
	}
}
