// Package main provides a small CLI client for testing against a running
// server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("groovectl", "groovebox control client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	space  = app.Flag("space", "Space id").Default("default").String()
	actor  = app.Flag("actor", "Actor id").Default("cli").String()
	name   = app.Flag("name", "Actor display name").Default("cli").String()

	// invoke command
	invokeCmd    = app.Command("invoke", "Invoke an action")
	invokeAction = invokeCmd.Arg("action", "Action name").Required().String()
	invokeArgs   = invokeCmd.Arg("args", "Arguments as key=value pairs").StringMap()

	// status command
	statusCmd = app.Command("status", "Show the space's playback status")

	// queue command
	queueCmd = app.Command("queue", "Show the space's queue")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch cmd {
	case invokeCmd.FullCommand():
		invoke(*invokeAction, *invokeArgs)
	case statusCmd.FullCommand():
		get(fmt.Sprintf("%s/api/v1/spaces/%s/status", *server, *space))
	case queueCmd.FullCommand():
		get(fmt.Sprintf("%s/api/v1/spaces/%s/queue", *server, *space))
	case subscribeCmd.FullCommand():
		subscribe()
	}
}

func invoke(action string, rawArgs map[string]string) {
	// Keep numbers numeric so server-side decoding sees ints.
	args := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && fmt.Sprint(n) == v {
			args[k] = n
		} else {
			args[k] = v
		}
	}

	body, _ := json.Marshal(map[string]any{
		"action": action,
		"actor":  map[string]string{"id": *actor, "name": *name},
		"args":   args,
	})

	url := fmt.Sprintf("%s/api/v1/spaces/%s/actions", *server, *space)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func get(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func printResponse(resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	fmt.Println(string(data))

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func subscribe() {
	wsURL := strings.Replace(*server, "http", "ws", 1) + "/api/v1/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("Subscribed. Waiting for notifications (Ctrl+C to exit)...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Stream closed: %v\n", err)
			return
		}
		fmt.Println(string(data))
	}
}
