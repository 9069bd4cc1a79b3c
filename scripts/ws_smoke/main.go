package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("WIRERELAY_TOKEN"), "bearer token (or WIRERELAY_TOKEN)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return errors.New("token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	send := func(s string) error {
		if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
			return fmt.Errorf("send %q: %w", s, err)
		}
		return nil
	}

	for _, s := range []string{*token, "!who", *text} {
		if err := send(s); err != nil {
			return err
		}
	}

	// The relay echoes chat to the sender, so our own envelope ends the run.
	suffix := "]: " + *text
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg := string(data)
		fmt.Printf("Received: %q\n", msg)
		if strings.HasSuffix(msg, suffix) {
			break
		}
	}

	if err := send("!exit"); err != nil {
		return err
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		return fmt.Errorf("expected normal closure, got %v", err)
	}
	fmt.Println("smoke test passed")
	return nil
}
