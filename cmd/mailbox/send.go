package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/nkllon/beast-mailbox/mailbox"
)

func runSend() {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	redisHost := fs.String("redis-host", "localhost", "Redis host")
	redisPort := fs.Int("redis-port", 6379, "Redis port")
	redisPassword := fs.String("redis-password", "", "Redis password")
	redisDB := fs.Int("redis-db", 0, "Redis database number")
	streamPrefix := fs.String("stream-prefix", "beast:mailbox", "Stream key prefix")
	maxLen := fs.Int64("maxlen", 1000, "Approximate max length of the inbox stream")
	message := fs.String("message", "", `Plain-text payload, sent as {"text": <message>}`)
	jsonPayload := fs.String("json", "", "JSON object payload")
	messageType := fs.String("message-type", "", "Message type classification")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Error: sender and recipient are required")
		fmt.Fprintln(os.Stderr, "Usage: mailbox send <sender> <recipient> [flags]")
		os.Exit(1)
	}
	sender := fs.Arg(0)
	recipient := fs.Arg(1)
	if err := fs.Parse(fs.Args()[2:]); err != nil {
		os.Exit(1)
	}

	var payload map[string]any
	switch {
	case *jsonPayload != "":
		if err := json.Unmarshal([]byte(*jsonPayload), &payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --json payload: %v\n", err)
			os.Exit(1)
		}
	case *message != "":
		payload = map[string]any{"text": *message}
	default:
		fmt.Fprintln(os.Stderr, "Error: one of --message or --json is required")
		os.Exit(1)
	}

	cfg := mailbox.DefaultMailboxConfig()
	cfg.Host = *redisHost
	cfg.Port = *redisPort
	cfg.Password = *redisPassword
	cfg.DB = *redisDB
	cfg.StreamPrefix = *streamPrefix
	cfg.MaxStreamLength = *maxLen

	svc := mailbox.NewMailboxService(sender, cfg)
	defer svc.Stop(context.Background())

	var opts []mailbox.SendOption
	if *messageType != "" {
		opts = append(opts, mailbox.WithMessageType(*messageType))
	}

	id, err := svc.SendMessage(context.Background(), recipient, payload, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to send message: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent message %s to %s\n", id, recipient)
}
