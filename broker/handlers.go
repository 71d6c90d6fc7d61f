package broker

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tarancss/broker/lib/store"
)

// Errors returned to client requests.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoAccount  = errors.New("undefined account - missing in uri")
	ErrNoAddr     = errors.New("undefined address - missing in uri")
	ErrNoCommand  = errors.New("unknown wallet command")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// respond writes the Response envelope. Wallet errors surface as 502 since the broker itself is
// healthy; bad requests as 400.
func respond(rw http.ResponseWriter, r *http.Request, body string, err error) {
	var res Response

	switch {
	case err == nil:
		rw.WriteHeader(http.StatusOK)
		res.Body = body
	case errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNoAccount) ||
		errors.Is(err, ErrNoAddr) || errors.Is(err, ErrNoCommand):
		rw.WriteHeader(http.StatusBadRequest)
		res.Error = err.Error()
	default:
		rw.WriteHeader(http.StatusBadGateway)
		res.Error = err.Error()
	}
	// log request and result
	log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(&res)
}

// homeHandler just replies a welcome message to the client.
func (b *Broker) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is your wallet broker!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// lifecycleHandler relays the imperative wallet commands: start, stop, restart, reindex, resync
// and rescan.
func (b *Broker) lifecycleHandler(rw http.ResponseWriter, r *http.Request) {
	var (
		body string
		err  error
	)

	switch mux.Vars(r)["cmd"] {
	case "start":
		body, err = b.Start(r.Context())
	case "stop":
		body, err = b.Stop(r.Context())
	case "restart":
		body, err = b.Restart(r.Context())
	case "reindex":
		body, err = b.Reindex(r.Context())
	case "resync":
		body, err = b.Resync(r.Context())
	case "rescan":
		body, err = b.Rescan(r.Context())
	default:
		err = ErrNoCommand
	}

	respond(rw, r, body, err)
}

// infoHandler replies the wallet's status summary.
func (b *Broker) infoHandler(rw http.ResponseWriter, r *http.Request) {
	body, err := b.Info(r.Context())
	respond(rw, r, body, err)
}

// bestBlockHashHandler replies the wallet's best block hash.
func (b *Broker) bestBlockHashHandler(rw http.ResponseWriter, r *http.Request) {
	body, err := b.BestBlockHash(r.Context())
	respond(rw, r, body, err)
}

// newAddressRequest is the body of a POST /address request.
type newAddressRequest struct {
	Account string `json:"account"`
}

// newAddressHandler asks the wallet for a fresh address and saves the address to user mapping so
// later NOTIFY events can be attributed.
func (b *Broker) newAddressHandler(rw http.ResponseWriter, r *http.Request) {
	var req newAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		respond(rw, r, "", ErrNoAccount)

		return
	}

	addr, err := b.NewAddress(r.Context(), req.Account)
	if err == nil {
		if errDB := b.db.AddAddress(r.Context(), store.WalletAddress{Address: addr, UserID: req.Account}); errDB != nil {
			log.Printf("Error saving address %s for account %s:%e", addr, req.Account, errDB)
		}
	}

	respond(rw, r, addr, err)
}

// addressesHandler replies the addresses the wallet issued for the account.
func (b *Broker) addressesHandler(rw http.ResponseWriter, r *http.Request) {
	account, ok := mux.Vars(r)["account"]
	if !ok || account == "" {
		respond(rw, r, "", ErrNoAccount)

		return
	}

	list, err := b.Addresses(r.Context(), account)
	if err != nil {
		respond(rw, r, "", err)

		return
	}

	tmp, _ := json.Marshal(list)
	respond(rw, r, string(tmp), nil)
}

// addrBalHandler replies the balance of the address requested.
func (b *Broker) addrBalHandler(rw http.ResponseWriter, r *http.Request) {
	address, ok := mux.Vars(r)["address"]
	if !ok || address == "" {
		respond(rw, r, "", ErrNoAddr)

		return
	}

	body, err := b.AddressBalance(r.Context(), address)
	respond(rw, r, body, err)
}

// accountBalHandler replies the balance of the account requested.
func (b *Broker) accountBalHandler(rw http.ResponseWriter, r *http.Request) {
	account, ok := mux.Vars(r)["account"]
	if !ok || account == "" {
		respond(rw, r, "", ErrNoAccount)

		return
	}

	body, err := b.AccountBalance(r.Context(), account)
	respond(rw, r, body, err)
}

// statusHandler replies the latest heartbeat snapshot stored for the coin.
func (b *Broker) statusHandler(rw http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]

	st, err := b.db.GetStatus(r.Context(), coin)
	if err != nil {
		if errors.Is(err, store.ErrDataNotFound) {
			err = ErrBadRequest
		}

		respond(rw, r, "", err)

		return
	}

	tmp, _ := json.Marshal(st)
	respond(rw, r, string(tmp), nil)
}

// sendHandler asks the wallet to send funds on-chain.
func (b *Broker) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" || req.Amount == "" {
		respond(rw, r, "", ErrBadRequest)

		return
	}

	body, err := b.SendFunds(r.Context(), req)
	respond(rw, r, body, err)
}

// replayHandler asks the wallet to re-emit the NOTIFY for a transaction.
func (b *Broker) replayHandler(rw http.ResponseWriter, r *http.Request) {
	body, err := b.Replay(r.Context(), mux.Vars(r)["txid"])
	respond(rw, r, body, err)
}

// crawlHandler asks the wallet to crawl from a block hash or height.
func (b *Broker) crawlHandler(rw http.ResponseWriter, r *http.Request) {
	body, err := b.Crawl(r.Context(), mux.Vars(r)["block"])
	respond(rw, r, body, err)
}
