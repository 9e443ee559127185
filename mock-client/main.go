// Command mock-client is a development tool that connects to the bridge,
// opens subscriptions and prints every pushed frame.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

func main() {
	var (
		serverURL   = flag.String("url", "ws://localhost:8080/ws", "bridge websocket URL")
		token       = flag.String("token", "", "access token (empty connects as public)")
		collections = flag.String("collections", "articles", "comma-separated collections to subscribe to")
		item        = flag.String("item", "", "single item key to watch instead of the whole collection")
	)
	flag.Parse()

	url := *serverURL
	if *token != "" {
		url += "?access_token=" + *token
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", *serverURL)

	for i, collection := range strings.Split(*collections, ",") {
		collection = strings.TrimSpace(collection)
		if collection == "" {
			continue
		}
		sub := map[string]any{
			"type":       "subscribe",
			"collection": collection,
			"uid":        fmt.Sprintf("sub-%d", i+1),
		}
		if *item != "" {
			sub["item"] = *item
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Fatalf("subscribe %s: %v", collection, err)
		}
		log.Printf("subscribed to %s", collection)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			fmt.Println(string(frame))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
	}
}
