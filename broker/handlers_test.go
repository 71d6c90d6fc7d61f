package broker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/broker/lib/store"
)

func TestAPI(t *testing.T) {
	b, db, _ := newTestBroker(t)

	rq := &stubRequester{reply: []byte(`{"isError":false,"message":"addr_new_1"}`)}
	b.rq = rq

	// seed a heartbeat snapshot
	require.NoError(t, db.UpsertStatus(nil, store.WalletStatus{Type: "X", Online: true, Synced: true,
		BlockHeight: 900, BlockHash: "H", BlockTime: 1700000000, Updated: time.Now()}))

	srv := httptest.NewServer(b.routes())
	defer srv.Close()

	// define tests
	cases := []struct {
		name, method, uri string      // case name, http method to use and uri
		obj               interface{} // object for POST
		reply             string      // canned wallet reply
		status            int         // http status code
		errExp            string      // error expected
		resExp            string      // body result expected
	}{
		{"home", http.MethodGet, "/", nil, "", http.StatusOK, "", "Hello, this is your wallet broker!"},
		{"info", http.MethodGet, "/info", nil, `{"isError":false,"message":"3 networks"}`, http.StatusOK, "", "3 networks"},
		{"bestblockhash", http.MethodGet, "/bestblockhash", nil, `{"isError":false,"message":"H"}`, http.StatusOK, "", "H"},
		{"lifecycle_start", http.MethodPost, "/wallet/start", nil, `{"isError":false,"message":"started"}`, http.StatusOK, "", "started"},
		{"lifecycle_bad", http.MethodPost, "/wallet/explode", nil, "", http.StatusBadRequest, ErrNoCommand.Error(), ""},
		{"lifecycle_get", http.MethodGet, "/wallet/start", nil, "", http.StatusMethodNotAllowed, "", ""},
		{"wallet_error", http.MethodPost, "/wallet/stop", nil, `{"isError":true,"message":"no daemon"}`, http.StatusBadGateway, "wallet returned an error: no daemon", ""},
		{"new_address", http.MethodPost, "/address", newAddressRequest{Account: "U1"}, `{"isError":false,"message":"addr_new_1"}`, http.StatusOK, "", "addr_new_1"},
		{"new_address_no_account", http.MethodPost, "/address", newAddressRequest{}, "", http.StatusBadRequest, ErrNoAccount.Error(), ""},
		{"addresses", http.MethodGet, "/addresses/U1", nil, `{"isError":false,"message":["a1","a2"]}`, http.StatusOK, "", `["a1","a2"]`},
		{"addr_balance", http.MethodGet, "/balance/address/a1", nil, `{"isError":false,"message":"150000000"}`, http.StatusOK, "", "150000000"},
		{"account_balance", http.MethodGet, "/balance/account/U1", nil, `{"isError":false,"message":"150000000"}`, http.StatusOK, "", "150000000"},
		{"send", http.MethodPost, "/send", TxRequest{Coin: "X", To: "A9", Amount: "100"}, `{"isError":false,"message":"T77"}`, http.StatusOK, "", "T77"},
		{"send_bad", http.MethodPost, "/send", TxRequest{Coin: "X"}, "", http.StatusBadRequest, ErrBadRequest.Error(), ""},
		{"replay", http.MethodPost, "/replay/T1", nil, `{"isError":false,"message":"replayed"}`, http.StatusOK, "", "replayed"},
		{"crawl", http.MethodPost, "/crawl/900", nil, `{"isError":false,"message":"crawling"}`, http.StatusOK, "", "crawling"},
		{"status_unknown", http.MethodGet, "/status/NOPE", nil, "", http.StatusBadRequest, ErrBadRequest.Error(), ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rq.reply = []byte(c.reply)

			var body *bytes.Buffer = bytes.NewBuffer(nil)
			if c.obj != nil {
				require.NoError(t, json.NewEncoder(body).Encode(c.obj))
			}

			req, err := http.NewRequest(c.method, srv.URL+c.uri, body)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, c.status, resp.StatusCode)

			if c.status == http.StatusMethodNotAllowed {
				return
			}

			var res Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.Equal(t, c.errExp, res.Error)
			assert.Equal(t, c.resExp, res.Body)
		})
	}

	// issuing an address also saves the mapping for NOTIFY attribution
	assert.Equal(t, "U1", db.addrs["addr_new_1"].UserID)
}

func TestAPIStatusSnapshot(t *testing.T) {
	b, db, _ := newTestBroker(t)
	require.NoError(t, db.UpsertStatus(nil, store.WalletStatus{Type: "X", Online: true,
		BlockHeight: 900, BlockHash: "H"}))

	srv := httptest.NewServer(b.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/X")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	var st store.WalletStatus
	require.NoError(t, json.Unmarshal([]byte(res.Body), &st))
	assert.Equal(t, uint64(900), st.BlockHeight)
	assert.True(t, st.Online)
}
