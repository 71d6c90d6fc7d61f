// Package broker and its sub-packages implement the site-side peer of a custodial wallet deployment.
/*
A remote wallet process watches one or more cryptocurrency networks. This repository implements the
broker that the site runs next to its own backend:

1) a point-to-point messaging substrate (package lib/intercom) providing a bidirectional,
 length-framed request/reply channel between the site and the wallet, in plaintext or with mutual
 TLS against a shared CA.

2) a broker service (package broker) that issues imperative commands to the wallet (start, stop,
 rescan, new-address, send-funds, ...) and consumes the wallet's asynchronous NOTIFY and HEARTBEAT
 events, turning them into durable site state: deduplicated transactions, idempotent credit jobs,
 per-user balances and per-coin wallet status.

Architecture

The wallet peer pushes a NOTIFY message every time it observes a transaction touching a watched
address, and a HEARTBEAT message on a fixed cadence. The broker processes each NOTIFY inside a
single database transaction serialized per transaction id, so retransmitted or out-of-order
observations can never credit a user twice. Balances are kept as fixed-precision decimals; the
type-3 rows of the transaction table form the ledger of record and the cached per-user balance
always equals their sum.

Persistence is product agnostic (package lib/store): a PostgreSQL and a MongoDB backend are
provided and selected by configuration. Credit and status events are published to a message broker
(package lib/msg) so site front-ends can notify users in real time without polling the ledger.

An HTTP RESTful API (see broker/rest.go) exposes the wallet command surface to site operators. The
service can be monitored via a Prometheus API by setting the flag "-m" at startup.

The broker can be started running cmd/broker/main.go. Configuration is read from a JSON file
and/or OS ENV variables, see package lib/config.
*/
package broker
