package rtvi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openvalet/go-valet/pkg/session"
	"github.com/openvalet/go-valet/pkg/value"
)

// botServer fakes the backend: a connect endpoint plus a websocket that
// scripts can drive.
type botServer struct {
	t           *testing.T
	ws          *httptest.Server
	connect     *httptest.Server
	connectBody chan []byte
	authHeader  chan string
	inbound     chan envelope
	outbound    chan envelope
	wsConns     chan *websocket.Conn
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{
		t:           t,
		connectBody: make(chan []byte, 1),
		authHeader:  make(chan string, 1),
		inbound:     make(chan envelope, 16),
		outbound:    make(chan envelope, 16),
		wsConns:     make(chan *websocket.Conn, 16),
	}

	upgrader := websocket.Upgrader{}
	s.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.wsConns <- conn

		go func() {
			for msg := range s.outbound {
				payload, _ := json.Marshal(msg)
				conn.WriteMessage(websocket.TextMessage, payload)
			}
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg envelope
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			s.inbound <- msg
		}
	}))

	s.connect = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.connectBody <- body
		s.authHeader <- r.Header.Get("Authorization")

		wsURL := "ws" + strings.TrimPrefix(s.ws.URL, "http")
		json.NewEncoder(w).Encode(map[string]any{
			"ws_url": wsURL,
			"token":  "session-token",
			"expiry": time.Now().Add(10 * time.Minute).Unix(),
		})
	}))

	t.Cleanup(func() {
		s.connect.Close()
		s.ws.Close()
		close(s.outbound)
	})
	return s
}

// dropConns severs established websocket connections. The httptest server's
// CloseClientConnections cannot be used for this: it stops tracking
// connections once they are hijacked for the websocket upgrade.
func (s *botServer) dropConns() {
	for {
		select {
		case conn := <-s.wsConns:
			conn.Close()
		default:
			return
		}
	}
}

func (s *botServer) push(id, msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.t.Fatal(err)
	}
	s.outbound <- envelope{ID: id, Label: rtviLabel, Type: msgType, Data: raw}
}

func (s *botServer) next(msgType string) envelope {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-s.inbound:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			s.t.Fatalf("no %s message received", msgType)
		}
	}
}

func testConfig() session.Config {
	return session.Config{
		Services: []session.ServiceRegistration{
			{Service: "tts", Value: "cartesia"},
			{Service: "llm", Value: "openai"},
		},
		Config: []session.ServiceConfig{
			{Service: "llm", Options: []session.Option{
				{Name: "model", Value: value.Str("gpt-4o")},
			}},
		},
		CustomHeaders: []session.Header{{Name: "Authorization", Value: "Bearer db-key"}},
		CustomBodyParams: value.Object{
			{Key: "bot_profile", Value: value.Str("voice_2024_10")},
			{Key: "max_duration", Value: value.Number(600)},
		},
	}
}

func TestStartHandshake(t *testing.T) {
	server := newBotServer(t)

	events := &session.Events{}
	connected := make(chan struct{}, 1)
	events.Connected = func() { connected <- struct{}{} }

	client := New(server.connect.URL, events)
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer client.Release()

	if auth := <-server.authHeader; auth != "Bearer db-key" {
		t.Errorf("auth header = %q", auth)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(<-server.connectBody, &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"services", "config", "bot_profile", "max_duration"} {
		if _, ok := body[key]; !ok {
			t.Errorf("connect body missing %q", key)
		}
	}

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("Connected event not delivered")
	}

	if expiry, ok := client.Expiry(); !ok || !expiry.After(time.Now()) {
		t.Errorf("expiry = %v, %v", expiry, ok)
	}

	ready := server.next(typeClientReady)
	if ready.Label != rtviLabel {
		t.Errorf("label = %q", ready.Label)
	}
}

func TestBotReadyAndTranscripts(t *testing.T) {
	server := newBotServer(t)

	events := &session.Events{}
	readyVersion := make(chan string, 1)
	transcripts := make(chan string, 4)
	events.BotReady = func(version string) { readyVersion <- version }
	events.BotTranscript = func(text string) { transcripts <- text }

	client := New(server.connect.URL, events)
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer client.Release()

	server.push("", typeBotReady, botReadyData{Version: "2.1.0"})
	server.push("", typeBotTranscription, transcriptData{Text: "Hello there."})

	select {
	case v := <-readyVersion:
		if v != "2.1.0" {
			t.Errorf("version = %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("BotReady not delivered")
	}

	select {
	case text := <-transcripts:
		if text != "Hello there." {
			t.Errorf("transcript = %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transcript not delivered")
	}
}

func TestFunctionCallRoundTrip(t *testing.T) {
	server := newBotServer(t)

	events := &session.Events{}
	events.FunctionCall = func(call session.FunctionCall, onResult func(value.Value)) {
		if call.Name != "current_date_time" {
			t.Errorf("call name = %q", call.Name)
		}
		onResult(value.Object{{Key: "current_date_time", Value: value.Str("Friday")}})
	}

	client := New(server.connect.URL, events)
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer client.Release()

	server.push("call-1", typeFunctionCall, functionCallData{
		FunctionName: "current_date_time",
		ToolCallID:   "tc-7",
		Args:         json.RawMessage(`{}`),
	})

	result := server.next(typeFunctionCallResult)
	var data functionCallResultData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.FunctionName != "current_date_time" || data.ToolCallID != "tc-7" {
		t.Errorf("result data = %+v", data)
	}
	if !strings.Contains(string(data.Result), "Friday") {
		t.Errorf("result = %s", data.Result)
	}
}

func TestDescribeActions(t *testing.T) {
	server := newBotServer(t)

	client := New(server.connect.URL, &session.Events{})
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer client.Release()

	results := make(chan []session.ActionDescription, 1)
	client.DescribeActions(func(actions []session.ActionDescription, err error) {
		if err != nil {
			t.Errorf("describe actions: %v", err)
		}
		results <- actions
	})

	request := server.next(typeDescribeActions)
	if request.ID == "" {
		t.Fatal("describe-actions request missing id")
	}
	server.push(request.ID, typeActionsAvailable, map[string]any{
		"actions": []session.ActionDescription{{Service: "tts", Action: "say"}},
	})

	select {
	case actions := <-results:
		if len(actions) != 1 || actions[0].Action != "say" {
			t.Errorf("actions = %+v", actions)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("actions not delivered")
	}
}

func TestReadLoopLossFiresDisconnected(t *testing.T) {
	server := newBotServer(t)

	events := &session.Events{}
	disconnected := make(chan struct{}, 1)
	events.Disconnected = func() { disconnected <- struct{}{} }

	client := New(server.connect.URL, events)
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}
	defer client.Release()

	server.dropConns()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnected not delivered")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	server := newBotServer(t)

	events := &session.Events{}
	disconnects := make(chan struct{}, 4)
	events.Disconnected = func() { disconnects <- struct{}{} }

	client := New(server.connect.URL, events)
	if err := client.Start(testConfig()); err != nil {
		t.Fatal(err)
	}

	if err := client.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatal(err)
	}
	client.Release()

	count := 0
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case <-disconnects:
			count++
		case <-timeout:
			break drain
		}
	}
	if count != 1 {
		t.Errorf("Disconnected fired %d times", count)
	}
}
