package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tarancss/broker/lib/intercom"
	"github.com/tarancss/broker/lib/msg"
	"github.com/tarancss/broker/lib/store"
)

// heartbeatMsg is the payload of a HEARTBEAT message: the wallet's health snapshot for one coin.
type heartbeatMsg struct {
	Coin          string `json:"coin"`
	Online        bool   `json:"online"`
	Synced        bool   `json:"synced"`
	Crawling      bool   `json:"crawling"`
	BlockHeight   uint64 `json:"blockheight"`
	BestBlockHash string `json:"bestBlockHash"`
	BlockTime     int64  `json:"blocktime"`
}

// heartbeatHandler upserts the coin status row. Heartbeats are snapshots, so concurrent deliveries
// for the same coin resolve last-writer-wins.
func (b *Broker) heartbeatHandler(from intercom.Endpoint, payload []byte, reply intercom.ReplyFunc) {
	var h heartbeatMsg
	if err := json.Unmarshal(payload, &h); err != nil || h.Coin == "" {
		log.Printf("Dropping HEARTBEAT frame from endpoint %d: %v", from.ID, intercom.ErrFrameDecode)
		return // the dispatcher acknowledges with an empty reply
	}

	ctx, cancel := context.WithTimeout(context.Background(), intercom.ShutdownGrace)
	defer cancel()

	err := b.db.UpsertStatus(ctx, store.WalletStatus{
		Type:        h.Coin,
		Online:      h.Online,
		Synced:      h.Synced,
		Crawling:    h.Crawling,
		BlockHeight: h.BlockHeight,
		BlockHash:   h.BestBlockHash,
		BlockTime:   h.BlockTime,
		Updated:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[%s] Error processing HEARTBEAT:%e", h.Coin, err)

		_ = reply([]byte("HEARTBEAT failed"))

		return
	}

	b.met.heartbeats.Inc()

	if b.mb != nil {
		if err := b.mb.SendStatus(h.Coin, msg.StatusEvent{
			Coin:        h.Coin,
			Online:      h.Online,
			Synced:      h.Synced,
			Crawling:    h.Crawling,
			BlockHeight: h.BlockHeight,
			BlockHash:   h.BestBlockHash,
			BlockTime:   h.BlockTime,
		}); err != nil {
			log.Printf("[%s] Error publishing status event:%e", h.Coin, err)
		}
	}

	_ = reply([]byte(heartbeatAck))
}
