// Package main: wallet broker service.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarancss/broker/broker"
	"github.com/tarancss/broker/lib/config"
	"github.com/tarancss/broker/lib/intercom"
	"github.com/tarancss/broker/lib/msg"
	"github.com/tarancss/broker/lib/msg/amqp"
	"github.com/tarancss/broker/lib/store"
	"github.com/tarancss/broker/lib/store/db"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to database
	var dbConn store.DB

	if conf.DBConn != "" {
		if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
			panic(err)
		}

		log.Printf("Connecting to database:%+v\n", conf.DBConn)
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.EventBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	default:
		log.Printf("Unknown message broker type: %s\n", conf.MbType)
	}

	// load TLS material when the intercom channel runs in mutual TLS mode
	var tlsm *intercom.Material

	if conf.Ic.Mode == config.ModeTLS {
		if tlsm, err = intercom.LoadTLS(conf.ConfDir, conf.Ic.SiteName, conf.Ic.Passphrase); err != nil {
			panic(err)
		}
	}

	// set up the intercom session and connect to the wallet endpoint
	disp := intercom.NewDispatcher(intercom.DefaultWorkers)
	ic := intercom.New(conf.Ic.ID, conf.Ic.Port, conf.Ic.Mode, tlsm, disp)

	if err = ic.Listen(); err != nil {
		panic(err)
	}

	// create broker service
	b := broker.New(conf, dbConn, mb, ic, nil)
	b.RegisterHandlers(disp)

	ic.Connect(intercom.Endpoint{ID: conf.Ic.RemoteID, Host: conf.Ic.RemoteHost, Port: conf.Ic.RemotePort})

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		b.StopBroker()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	log.Printf("Broker: %s\n", b.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
