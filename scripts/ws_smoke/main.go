package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Aswin1819/talkmate-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws/rooms/1", "room websocket address")
	token := flag.String("token", "", "bearer token for the room connection")
	password := flag.String("password", "", "room password for private rooms")
	text := flag.String("text", "hello from smoke test", "chat message to send after joining")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	}
	conn, _, err := websocket.Dial(ctx, *addr, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{
		Type:     proto.InboundTypeJoin,
		Password: *password,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	if err := wsjson.Write(ctx, conn, proto.Inbound{
		Type:    proto.InboundTypeChatMessage,
		Message: *text,
	}); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received: type=%s", outbound.Type)
		if outbound.Error != "" {
			fmt.Printf(" error=%q code=%s", outbound.Error, outbound.ErrorCode)
		}
		fmt.Println()

		switch outbound.Type {
		case proto.OutboundTypeRoomState:
			fmt.Printf("RoomState: room=%d uuid=%s participants=%d\n",
				outbound.RoomID, outbound.RoomUUID, len(outbound.Participants))
			for _, p := range outbound.Participants {
				fmt.Printf("  user=%d name=%s role=%s\n", p.UserID, p.Username, p.Role)
			}
		case proto.OutboundTypeChatMessage:
			fmt.Printf("Chat: user=%s text=%q ts=%s\n", outbound.Username, outbound.Message, outbound.Timestamp)
			return nil
		case proto.OutboundTypeError:
			return fmt.Errorf("server error: %s (%s)", outbound.Error, outbound.ErrorCode)
		default:
			// keep looping for the chat echo
		}
	}
}
