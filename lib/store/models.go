package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction row types.
const (
	TxObserved = 1 // raw network observation, at most one per txid
	TxCredit   = 3 // per-user credit entry, at most one per (txid, user)
)

// Job states.
const (
	JobObserved  = 0 // observed, not yet attributable
	JobProcessed = 3 // attributed and processed
)

// WalletTx contains the fields for an observed or credited transaction saved to DB. Type TxObserved
// rows track the on-chain transaction itself; type TxCredit rows are the per-user ledger entries
// cut when the transaction reached the confirmation threshold.
type WalletTx struct {
	TxID      string          `json:"txid" bson:"txid"`
	BlockHash string          `json:"blockhash" bson:"blockhash"`
	CoinType  int             `json:"coinType" bson:"coinType"`
	TxType    int             `json:"txType" bson:"txType"`
	Confirms  uint64          `json:"confirms" bson:"confirms"`
	Complete  bool            `json:"complete" bson:"complete"`
	Processed bool            `json:"processed" bson:"processed"`
	UserID    string          `json:"userId,omitempty" bson:"userId,omitempty"`
	Amount    decimal.Decimal `json:"amount" bson:"-"`
}

// WalletJob contains the bookkeeping handle for the credit workflow of one transaction. Job is the
// txid, Data keeps the raw NOTIFY payload that opened the job.
type WalletJob struct {
	Job    string `json:"job" bson:"job"`
	State  int    `json:"state" bson:"state"`
	Type   string `json:"type" bson:"type"`
	Data   []byte `json:"data" bson:"data"`
	UserID string `json:"userId,omitempty" bson:"userId,omitempty"`
	Result string `json:"result,omitempty" bson:"result,omitempty"`
}

// WalletAddress maps a wallet-issued address to a site user.
type WalletAddress struct {
	Address string `json:"address" bson:"address"`
	UserID  string `json:"userId" bson:"userId"`
}

// WalletBalance contains a user's spendable balance. The balance is a cache: it always equals the
// sum of Amount over the user's TxCredit rows.
type WalletBalance struct {
	UserID  string          `json:"userId" bson:"userId"`
	Balance decimal.Decimal `json:"balance" bson:"-"`
}

// WalletStatus contains the latest heartbeat snapshot for a coin.
type WalletStatus struct {
	Type        string    `json:"type" bson:"type"`
	Online      bool      `json:"online" bson:"online"`
	Synced      bool      `json:"synced" bson:"synced"`
	Crawling    bool      `json:"crawling" bson:"crawling"`
	BlockHeight uint64    `json:"blockheight" bson:"blockheight"`
	BlockHash   string    `json:"blockhash" bson:"blockhash"`
	BlockTime   int64     `json:"blocktime" bson:"blocktime"`
	Updated     time.Time `json:"updatedAt" bson:"updatedAt"`
}
