package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	websocket "github.com/hummingbird-project/go-websocket"
)

func main() {
	url := "ws://echo.websocket.org/"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	cfg := websocket.Config{
		Extensions:                    []websocket.ClientExtension{websocket.NewPermessageDeflate(websocket.DefaultPermessageDeflateParams())},
		ValidateUTF8:                  true,
		ReadProxyEnvironmentVariables: true,
		Logger:                        websocket.NewStdLogger("ws"),
		AutoPing:                      websocket.AutoPingSetup{Enabled: true, Period: 30 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := websocket.Connect(ctx, url, cfg, nil, func(ctx context.Context, conn *websocket.Conn) {
		if err := conn.WriteText("hello from the example client"); err != nil {
			fmt.Fprintln(os.Stderr, "write failed:", err)
			return
		}

		select {
		case msg, ok := <-conn.Inbound():
			if !ok {
				fmt.Fprintln(os.Stderr, "connection closed before echo arrived")
				return
			}
			fmt.Printf("received: %s\n", msg.Text())
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "timed out waiting for echo")
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}
