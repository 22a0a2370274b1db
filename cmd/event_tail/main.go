// Command event_tail prints intake events mirrored to NATS JetStream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"agro-intake-be/pkg/events"
	pktNats "agro-intake-be/pkg/nats"

	"github.com/fatih/color"
)

func main() {
	url := flag.String("nats", "nats://localhost:4222", "NATS server URL")
	eventType := flag.String("type", ">", "event type to follow (PATCH_READY, MESSAGE_APPENDED, ...), > for all")
	session := flag.String("session", "", "only print events of this session")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := pktNats.NewSubscriber(*url)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer sub.Close()

	subject := pktNats.Subject(*eventType)
	err = sub.Subscribe(ctx, subject, func(_ context.Context, e events.Event) error {
		sessionID := events.SessionID(e)
		if *session != "" && sessionID != *session {
			return nil
		}
		data, _ := json.Marshal(e.Payload())
		color.Cyan("%s  %s", e.Timestamp().Format("15:04:05.000"), e.EventType())
		fmt.Printf("  session=%s %s\n", sessionID, data)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	color.Green("Listening on %s (Ctrl+C to stop)", subject)
	<-ctx.Done()
}
