package main

import (
	"bufio"
	"chat-match/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:5000/ws"`
	ClientID  string `env:"CLIENT_ID"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
	Colours   bool   `env:"COLOURS,default=true"`
}

type frame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// session remembers the current session id, written by the reader and read by the prompt.
type session struct {
	mu sync.Mutex
	id string
}

func (s *session) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *session) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	color.Enable = config.Colours

	target, err := url.Parse(config.ServerURL)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid CHAT_SERVER_URL: %w", err)
	}
	if config.ClientID != "" {
		query := target.Query()
		query.Set("client_id", config.ClientID)
		target.RawQuery = query.Encode()
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to the pairing server.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", target.Redacted(), err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	current := &session{}
	readDone := make(chan error, 1)
	go func() {
		readDone <- readLoop(conn, current)
	}()

	color.Cyan.Println("Commands: /find, /leave, /quit. Anything else is sent to your partner.")

	// 4. Prompt loop on stdin.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-readDone:
			if err != nil {
				return exitRuntime, err
			}
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			quit, err := handleLine(conn, current, strings.TrimSpace(line))
			if err != nil {
				return exitRuntime, err
			}
			if quit {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return exitOK, nil
			}
		}
	}
}

func handleLine(conn *websocket.Conn, current *session, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/find":
		return false, conn.WriteJSON(frame{Event: domain.EventFindPartner})
	case "/leave":
		data, _ := json.Marshal(map[string]string{"session_id": current.get()})
		current.set("")
		return false, conn.WriteJSON(frame{Event: domain.EventDisconnectManual, Data: data})
	default:
		if current.get() == "" {
			color.Yellow.Println("Not paired yet, type /find first.")
			return false, nil
		}
		data, _ := json.Marshal(map[string]string{"session_id": current.get(), "message": line})
		return false, conn.WriteJSON(frame{Event: domain.EventSendMessage, Data: data})
	}
}

func readLoop(conn *websocket.Conn, current *session) error {
	for {
		var incoming frame
		if err := conn.ReadJSON(&incoming); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				color.Gray.Println("Server closed the connection.")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		render(incoming, current)
	}
}

func render(incoming frame, current *session) {
	switch incoming.Event {
	case domain.EventConnected:
		var payload domain.ConnectedPayload
		_ = json.Unmarshal(incoming.Data, &payload)
		color.Green.Printf("Connected as %s\n", payload.UserID)
	case domain.EventWaiting:
		var payload domain.WaitingPayload
		_ = json.Unmarshal(incoming.Data, &payload)
		color.Yellow.Println(payload.Message)
	case domain.EventMatched:
		var payload domain.MatchedPayload
		_ = json.Unmarshal(incoming.Data, &payload)
		current.set(string(payload.SessionID))
		color.Green.Printf("Matched with %s\n", payload.Partner)
	case domain.EventNewMessage:
		var payload domain.NewMessagePayload
		_ = json.Unmarshal(incoming.Data, &payload)
		color.New(color.FgMagenta, color.OpBold).Printf("%s: ", payload.Sender)
		fmt.Println(payload.Message)
	case domain.EventMessageAck:
		color.Gray.Println("  ✓ delivered")
	case domain.EventStatus:
		var payload domain.StatusPayload
		_ = json.Unmarshal(incoming.Data, &payload)
		current.set("")
		color.Red.Println(payload.Message)
	case domain.EventError:
		var payload domain.ErrorPayload
		_ = json.Unmarshal(incoming.Data, &payload)
		color.Red.Printf("[%s] %s\n", payload.Code, payload.Message)
	default:
		color.Gray.Printf("%s %s\n", incoming.Event, string(incoming.Data))
	}
}
