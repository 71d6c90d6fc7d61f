// package broker implements the wallet broker microservice.
//
// The broker keeps an intercom channel to the remote wallet process, sends it imperative commands
// and consumes its NOTIFY and HEARTBEAT events into durable site state. A RESTful API exposes the
// command surface to site operators.
package broker

import (
	"context"
	"log"
	"net/http"

	"github.com/tarancss/broker/lib/config"
	"github.com/tarancss/broker/lib/intercom"
	"github.com/tarancss/broker/lib/msg"
	"github.com/tarancss/broker/lib/store"
	"github.com/tarancss/broker/lib/store/db"
)

// Broker contains the data necessary to deliver the service
type Broker struct {
	cfg    config.ServiceConfig
	dbtype string
	db     store.DB          // db connection
	mb     msg.EventBroker   // site event fan-out
	ic     *intercom.Session // channel to the wallet peer
	rq     requester         // overrides ic in tests
	remote uint32            // wallet endpoint id
	met    *Metrics
	s      *http.Server  // http server
	ss     *http.Server  // https server
	sc     chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Broker service
func New(cfg config.ServiceConfig, dbConn store.DB, mb msg.EventBroker, ic *intercom.Session, met *Metrics) *Broker {
	if met == nil {
		met = NewMetrics(nil)
	}

	return &Broker{
		cfg:    cfg,
		dbtype: cfg.DBType,
		db:     dbConn,
		mb:     mb,
		ic:     ic,
		remote: cfg.Ic.RemoteID,
		met:    met,
	}
}

// RegisterHandlers wires the wallet's asynchronous events into the dispatcher.
func (b *Broker) RegisterHandlers(d *intercom.Dispatcher) {
	d.Handle(MsgNotify, b.notifyHandler)
	d.Handle(MsgHeartbeat, b.heartbeatHandler)
}

// StopBroker shuts down the http servers implementing the RESTful API and closes gracefully the
// intercom channel and the connections to message broker and database.
func (b *Broker) StopBroker() {
	var err error
	// shutdown http server
	if b.s != nil {
		if err = b.s.Shutdown(context.Background()); err != nil {
			log.Printf("Error in http server shutdown:%e", err)
		}
	}
	if b.ss != nil {
		if err = b.ss.Shutdown(context.Background()); err != nil {
			log.Printf("Error in https server shutdown:%e", err)
		}
	}
	if b.sc != nil {
		close(b.sc) // close server channels to indicate shutdowns have finished
	}
	// close intercom channel: cancels pending continuations and drains in-flight handlers
	if b.ic != nil {
		b.ic.Close()
	}
	// close message broker
	if b.mb != nil {
		if err = b.mb.Close(); err != nil {
			log.Printf("Error closing message broker:%e", err)
		}
	}
	// close database
	if b.db != nil {
		err = db.Close(b.dbtype, b.db)
		log.Printf("Disconnecting %v database, err:%e\n", b.dbtype, err)
	}
}
