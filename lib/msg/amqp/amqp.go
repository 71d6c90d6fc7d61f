// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"

	"github.com/tarancss/broker/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.EventBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchange:
//
// - we ("wallet events"): the broker publishes credit and status events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchange
	return channel.ExchangeDeclare("we", "topic", true, false, false, false, nil)
}

// Close terminages gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendCredit publishes a credit event to the "we" exchange
func (r *Amqp) SendCredit(coin string, e msg.CreditEvent) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(e); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	msg := amqp.Publishing{
		Headers:     amqp.Table{"x-credit-name": coin + "." + e.TxID},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("we", coin+".credit."+e.TxID, false, false, msg); err != nil {
		log.Printf("[%s] Error sending credit event to message broker %e", coin, err)
	}
	return
}

// SendStatus publishes a wallet status event to the "we" exchange
func (r *Amqp) SendStatus(coin string, e msg.StatusEvent) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(e); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	msg := amqp.Publishing{
		Headers:     amqp.Table{"x-status-name": coin},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("we", coin+".status", false, false, msg); err != nil {
		log.Printf("[%s] Error sending status event to message broker %e", coin, err)
	}
	return
}
