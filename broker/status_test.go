package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/broker/lib/intercom"
)

func heartbeat(t *testing.T, b *Broker, h heartbeatMsg) string {
	t.Helper()

	payload, err := json.Marshal(h)
	require.NoError(t, err)

	var got string
	b.heartbeatHandler(intercom.Endpoint{ID: 1}, payload, func(p []byte) error {
		got = string(p)
		return nil
	})

	return got
}

func TestHeartbeatUpsert(t *testing.T) {
	b, db, ev := newTestBroker(t)

	ack := heartbeat(t, b, heartbeatMsg{Coin: "X", Online: true, Synced: true,
		BlockHeight: 900, BestBlockHash: "H", BlockTime: 1700000000})
	assert.Equal(t, heartbeatAck, ack)

	// a later heartbeat for the same coin overwrites the snapshot, one row per coin
	ack = heartbeat(t, b, heartbeatMsg{Coin: "X", Online: true, Synced: false, Crawling: true,
		BlockHeight: 901, BestBlockHash: "H2", BlockTime: 1700000600})
	assert.Equal(t, heartbeatAck, ack)

	assert.Len(t, db.status, 1)

	st := db.status["X"]
	assert.Equal(t, uint64(901), st.BlockHeight)
	assert.Equal(t, "H2", st.BlockHash)
	assert.True(t, st.Crawling)
	assert.False(t, st.Synced)
	assert.False(t, st.Updated.IsZero())

	assert.Len(t, ev.status, 2)
	assert.Equal(t, uint64(901), ev.status[1].BlockHeight)
}

func TestHeartbeatSeparateCoins(t *testing.T) {
	b, db, _ := newTestBroker(t)

	heartbeat(t, b, heartbeatMsg{Coin: "X", Online: true, BlockHeight: 900})
	heartbeat(t, b, heartbeatMsg{Coin: "Y", Online: false, BlockHeight: 10})

	assert.Len(t, db.status, 2)
	assert.True(t, db.status["X"].Online)
	assert.False(t, db.status["Y"].Online)
}

func TestHeartbeatBadPayloadDropped(t *testing.T) {
	b, db, _ := newTestBroker(t)

	var replied bool
	b.heartbeatHandler(intercom.Endpoint{ID: 1}, []byte("garbage"), func(p []byte) error {
		replied = true
		return nil
	})

	assert.False(t, replied)
	assert.Empty(t, db.status)
}
