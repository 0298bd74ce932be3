package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/campuslms/chatcore/internal/client"
	"github.com/campuslms/chatcore/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "identity token (see `campuschat token`)")
	room := flag.Int64("room", 1, "room id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	session, err := client.Dial(ctx, *addr, *token)
	if err != nil {
		return err
	}
	defer session.Close()

	roster := make(chan proto.EventOnlineUsers, 1)
	echoed := make(chan proto.Message, 1)
	failed := make(chan proto.Error, 1)
	session.OnOnlineUsers(func(ev proto.EventOnlineUsers) { roster <- ev })
	session.OnNewMessage(func(m proto.Message) { echoed <- m })
	session.OnError(func(e proto.Error) { failed <- e })

	if err := session.Join(ctx, *room); err != nil {
		return err
	}

	select {
	case ev := <-roster:
		fmt.Printf("Joined room %d: %d online\n", ev.RoomID, len(ev.Users))
	case e := <-failed:
		return fmt.Errorf("join rejected: %s: %s", e.Code, e.Message)
	case <-ctx.Done():
		return fmt.Errorf("waiting for roster: %w", ctx.Err())
	}

	if err := session.Send(ctx, *room, *text); err != nil {
		return err
	}

	select {
	case m := <-echoed:
		fmt.Printf("Message %d from %s: %q at %s\n", m.ID, m.Sender.Name, m.Content, m.CreatedAt.Format(time.RFC3339))
		return nil
	case e := <-failed:
		return fmt.Errorf("send rejected: %s: %s", e.Code, e.Message)
	case <-ctx.Done():
		return fmt.Errorf("waiting for echo: %w", ctx.Err())
	}
}
