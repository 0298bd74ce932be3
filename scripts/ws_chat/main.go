package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/campuslms/chatcore/internal/client"
	"github.com/campuslms/chatcore/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "identity token (see `campuschat token`)")
	room := flag.Int64("room", 1, "room to join first")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := client.Dial(ctx, *addr, *token)
	if err != nil {
		return err
	}
	defer session.Close()

	session.OnOnlineUsers(func(ev proto.EventOnlineUsers) {
		names := make([]string, 0, len(ev.Users))
		for _, u := range ev.Users {
			names = append(names, u.Name)
		}
		fmt.Printf("* room %d online: %s\n", ev.RoomID, strings.Join(names, ", "))
	})
	session.OnUserJoined(func(ev proto.EventUserJoined) {
		fmt.Printf("* %s joined room %d (%d online)\n", ev.User.Name, ev.RoomID, ev.OnlineCount)
	})
	session.OnUserLeft(func(ev proto.EventUserLeft) {
		fmt.Printf("* user %d left room %d (%d online)\n", ev.UserID, ev.RoomID, ev.OnlineCount)
	})
	session.OnNewMessage(func(m proto.Message) {
		fmt.Printf("[%d] #%d %s: %s\n", m.RoomID, m.ID, m.Sender.Name, m.Content)
	})
	session.OnUserTyping(func(ev proto.EventTyping) {
		fmt.Printf("* user %d is typing\n", ev.UserID)
	})
	session.OnMessageRead(func(ev proto.EventMessageRead) {
		fmt.Printf("* user %d read #%d\n", ev.UserID, ev.MessageID)
	})
	session.OnMessageDeleted(func(ev proto.EventMessageDeleted) {
		fmt.Printf("* #%d deleted by user %d\n", ev.MessageID, ev.DeletedBy)
	})
	session.OnError(func(e proto.Error) {
		fmt.Printf("! %s: %s\n", e.Code, e.Message)
	})

	if err := session.SwitchRoom(ctx, *room); err != nil {
		return err
	}

	fmt.Println("Commands: /switch <room>, /read <msg>, /delete <msg>, /quit. Anything else is sent.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return session.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Printf("! %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, session *client.Session, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return session.Send(ctx, session.ActiveRoom(), line)
	}

	fields := strings.Fields(line)
	if fields[0] == "/quit" {
		return errQuit
	}
	if len(fields) != 2 {
		return fmt.Errorf("usage: %s <id>", fields[0])
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", fields[1])
	}

	switch fields[0] {
	case "/switch":
		return session.SwitchRoom(ctx, id)
	case "/read":
		return session.MarkRead(ctx, id)
	case "/delete":
		return session.DeleteMessage(ctx, id, session.ActiveRoom())
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}
