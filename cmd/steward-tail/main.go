// Package main provides a terminal tailer for the steward event stream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/calder-io/steward/streamclient"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080/v1/events/stream", "Stream endpoint address")
	types := flag.String("types", "", "Comma-separated event types to show (empty shows all)")
	verbose := flag.Bool("v", false, "Log reconnect attempts")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Tailing %s...\n", *addr)
	if *types != "" {
		fmt.Printf("Showing only: %s\n", *types)
	}

	var opts []streamclient.Option
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		opts = append(opts, streamclient.WithLogger(logger))
	}

	wanted := make(map[string]bool)
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			wanted[t] = true
		}
	}

	client := streamclient.NewClient(*addr, opts...)
	client.On(streamclient.Wildcard, func(evt streamclient.Event) {
		if len(wanted) > 0 && !wanted[evt.Type] {
			return
		}
		printEvent(evt)
	})

	client.Connect()
	defer client.Disconnect()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	fmt.Println("\nBye!")
}

// printEvent writes one line per event: timestamp, type, id and the
// compact payload body.
func printEvent(evt streamclient.Event) {
	ts := time.Now()
	if evt.Ts > 0 {
		ts = time.UnixMilli(evt.Ts)
	}

	payload := strings.TrimSpace(string(evt.Payload))
	if payload == "" || payload == "null" {
		fmt.Printf("%s [%s] id=%d\n", ts.Format("15:04:05"), evt.Type, evt.ID)
		return
	}
	fmt.Printf("%s [%s] id=%d %s\n", ts.Format("15:04:05"), evt.Type, evt.ID, payload)
}
