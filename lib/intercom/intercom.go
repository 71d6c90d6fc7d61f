// Package intercom implements the point-to-point messaging substrate between the broker and its
// wallet peers. Endpoints exchange length-framed messages over TCP, in plaintext or with mutual
// TLS against a shared CA. Every request carries a correlation id; the reply echoes it with
// message id 0, so requests always carry a message id of 1 or above.
package intercom

import (
	"errors"
	"net"
)

// Security modes of the channel.
const (
	ModePlain = 1 // plaintext TCP
	ModeTLS   = 2 // mutual TLS against the shared CA
)

// msgReply tags reply frames; their correlation id routes them to the waiting caller.
const msgReply uint16 = 0

// Errors returned
var (
	ErrTransport    = errors.New("transport failure")
	ErrTimeout      = errors.New("no reply within the request timeout")
	ErrCancelled    = errors.New("request cancelled")
	ErrNotConnected = errors.New("endpoint is not connected")
	ErrFrameDecode  = errors.New("could not decode frame payload")
	ErrDoubleReply  = errors.New("reply already sent for this request")
)

// Endpoint is an addressable peer, identified by a numeric id and reachable at host:port.
type Endpoint struct {
	ID   uint32 `json:"id"`
	Host string `json:"host"`
	Port string `json:"port"`
}

// Addr returns the dialable address of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, e.Port)
}
