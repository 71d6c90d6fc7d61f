package broker

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15

// Init sets up and starts the http/https server to service the RESTful API for the broker
// service. If sslPort, sslCert and sslKey are informed, it will start an https (TLS) server on the
// specified endpoint.
func (b *Broker) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	// API definition
	r := b.routes()
	http.Handle("/", r)

	// setup shutdown channel
	b.sc = make(chan struct{})

	// start http server
	if port != "" {
		b.s = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + port,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			err = b.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		b.ss = &http.Server{
			Handler: r,
			Addr:    endpoint + ":" + sslPort,
			// Good practice: enforce timeouts for servers you create!
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errTLS = b.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-b.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}

// routes builds the API route table.
func (b *Broker) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", b.homeHandler)
	r.HandleFunc("/wallet/{cmd}", b.lifecycleHandler).Methods("POST")              // start/stop/restart/reindex/resync/rescan
	r.HandleFunc("/info", b.infoHandler).Methods("GET")                            // wallet status summary
	r.HandleFunc("/bestblockhash", b.bestBlockHashHandler).Methods("GET")          // best block hash
	r.HandleFunc("/address", b.newAddressHandler).Methods("POST")                  // issue address for an account
	r.HandleFunc("/addresses/{account}", b.addressesHandler).Methods("GET")        // list account addresses
	r.HandleFunc("/balance/address/{address}", b.addrBalHandler).Methods("GET")    // wallet-side address balance
	r.HandleFunc("/balance/account/{account}", b.accountBalHandler).Methods("GET") // wallet-side account balance
	r.HandleFunc("/status/{coin}", b.statusHandler).Methods("GET")                 // latest heartbeat snapshot
	r.HandleFunc("/send", b.sendHandler).Methods("POST")                           // send a transaction
	r.HandleFunc("/replay/{txid}", b.replayHandler).Methods("POST")                // re-emit NOTIFY for a tx
	r.HandleFunc("/crawl/{block}", b.crawlHandler).Methods("POST")                 // crawl from block hash or height
	return r
}
