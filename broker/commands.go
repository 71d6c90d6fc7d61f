package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Message ids of the wallet protocol. The numeric values are an external contract shared with the
// installed wallet peer.
const (
	MsgStart         uint16 = 1
	MsgStop          uint16 = 2
	MsgRestart       uint16 = 3
	MsgReindex       uint16 = 4
	MsgResync        uint16 = 5
	MsgRescan        uint16 = 6
	MsgNewAddress    uint16 = 10
	MsgAddresses     uint16 = 11
	MsgAddressBal    uint16 = 12
	MsgIDBal         uint16 = 13
	MsgBestBlockHash uint16 = 14
	MsgInfo          uint16 = 15
	MsgSendFunds     uint16 = 20
	MsgReplay        uint16 = 21
	MsgCrawl         uint16 = 22
	MsgNotify        uint16 = 100
	MsgHeartbeat     uint16 = 101
)

// ErrWallet is returned when the wallet replies with isError set.
var ErrWallet = errors.New("wallet returned an error")

// Reply is the structured payload the wallet answers commands with.
type Reply struct {
	IsError bool            `json:"isError"`
	Message json.RawMessage `json:"message"`
}

// TxRequest contains the data required to ask the wallet to send funds. Amount is an integer
// string in the coin's smallest unit.
type TxRequest struct {
	Coin   string `json:"coin"`
	UserID string `json:"userId,omitempty"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// requester issues one request to the wallet endpoint and waits for the correlated reply. The
// intercom session implements it; tests substitute it.
type requester interface {
	Send(ctx context.Context, remote uint32, msgID uint16, payload []byte) ([]byte, error)
}

// command sends a request to the wallet and applies the uniform reply decode rule: a structured
// reply with isError set surfaces as ErrWallet, a structured reply without it delivers its
// message, and anything that does not parse is delivered raw as informational.
func (b *Broker) command(ctx context.Context, id uint16, payload []byte) (string, error) {
	raw, err := b.req().Send(ctx, b.remote, id, payload)
	if err != nil {
		return "", err
	}

	var rep Reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return string(raw), nil
	}

	m := replyMessage(rep.Message)
	if rep.IsError {
		return "", fmt.Errorf("%w: %s", ErrWallet, m)
	}

	return m, nil
}

// replyMessage unquotes a string message; any other message shape is delivered as its JSON text.
func replyMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}

func (b *Broker) req() requester {
	if b.rq != nil {
		return b.rq
	}

	return b.ic
}

// Start asks the wallet to start watching its networks.
func (b *Broker) Start(ctx context.Context) (string, error) {
	return b.command(ctx, MsgStart, nil)
}

// Stop asks the wallet to stop watching its networks.
func (b *Broker) Stop(ctx context.Context) (string, error) {
	return b.command(ctx, MsgStop, nil)
}

// Restart asks the wallet to restart.
func (b *Broker) Restart(ctx context.Context) (string, error) {
	return b.command(ctx, MsgRestart, nil)
}

// Reindex asks the wallet to rebuild its chain index.
func (b *Broker) Reindex(ctx context.Context) (string, error) {
	return b.command(ctx, MsgReindex, nil)
}

// Resync asks the wallet to resynchronize from its peers.
func (b *Broker) Resync(ctx context.Context) (string, error) {
	return b.command(ctx, MsgResync, nil)
}

// Rescan asks the wallet to rescan the chain for watched addresses.
func (b *Broker) Rescan(ctx context.Context) (string, error) {
	return b.command(ctx, MsgRescan, nil)
}

// Info returns the wallet's status summary.
func (b *Broker) Info(ctx context.Context) (string, error) {
	return b.command(ctx, MsgInfo, nil)
}

// BestBlockHash returns the hash of the wallet's best block.
func (b *Broker) BestBlockHash(ctx context.Context) (string, error) {
	return b.command(ctx, MsgBestBlockHash, nil)
}

// NewAddress asks the wallet to issue a fresh address for the account.
func (b *Broker) NewAddress(ctx context.Context, account string) (string, error) {
	return b.command(ctx, MsgNewAddress, []byte(account))
}

// Addresses returns the addresses the wallet issued for the account.
func (b *Broker) Addresses(ctx context.Context, account string) ([]string, error) {
	m, err := b.command(ctx, MsgAddresses, []byte(account))
	if err != nil {
		return nil, err
	}

	var list []string
	if err := json.Unmarshal([]byte(m), &list); err == nil {
		return list, nil
	}

	if m == "" {
		return nil, nil
	}

	return []string{m}, nil
}

// AddressBalance returns the balance the wallet sees for the address.
func (b *Broker) AddressBalance(ctx context.Context, address string) (string, error) {
	return b.command(ctx, MsgAddressBal, []byte(address))
}

// AccountBalance returns the balance the wallet sees for the account.
func (b *Broker) AccountBalance(ctx context.Context, account string) (string, error) {
	return b.command(ctx, MsgIDBal, []byte(account))
}

// SendFunds asks the wallet to send funds on-chain.
func (b *Broker) SendFunds(ctx context.Context, req TxRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	return b.command(ctx, MsgSendFunds, payload)
}

// Replay asks the wallet to re-emit the NOTIFY for a transaction.
func (b *Broker) Replay(ctx context.Context, txid string) (string, error) {
	return b.command(ctx, MsgReplay, []byte(txid))
}

// Crawl asks the wallet to crawl from a block hash or height.
func (b *Broker) Crawl(ctx context.Context, block string) (string, error) {
	return b.command(ctx, MsgCrawl, []byte(block))
}
