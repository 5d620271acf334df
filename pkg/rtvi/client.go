// Package rtvi implements the session transport over the RTVI wire
// protocol: an HTTP connect handshake against the bot backend followed by
// a websocket carrying {id, label, type, data} envelopes.
package rtvi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openvalet/go-valet/internal/httpc"
	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/session"
	"github.com/openvalet/go-valet/pkg/value"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// connectResponse is the backend's reply to the connect POST.
type connectResponse struct {
	WSURL  string `json:"ws_url"`
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // epoch seconds
}

// Client is a session.Connection over RTVI.
type Client struct {
	baseURL string
	events  *session.Events

	wsMu sync.Mutex
	ws   *websocket.Conn

	mu      sync.Mutex
	closed  bool
	expiry  time.Time
	pending map[string]func([]session.ActionDescription, error)
}

// New returns an unconnected client posting its handshake to baseURL.
func New(baseURL string, events *session.Events) *Client {
	return &Client{
		baseURL: baseURL,
		events:  events,
		pending: make(map[string]func([]session.ActionDescription, error)),
	}
}

// Factory adapts New to the session.Factory signature.
func Factory(baseURL string, events *session.Events) (session.Connection, error) {
	return New(baseURL, events), nil
}

// Start performs the connect handshake and opens the websocket.
func (c *Client) Start(cfg session.Config) error {
	resp, err := c.connect(cfg)
	if err != nil {
		return err
	}

	if resp.Expiry > 0 {
		c.mu.Lock()
		c.expiry = time.Unix(resp.Expiry, 0)
		c.mu.Unlock()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if resp.Token != "" {
		header.Set("Authorization", "Bearer "+resp.Token)
	}

	ws, _, err := dialer.Dial(resp.WSURL, header)
	if err != nil {
		return fmt.Errorf("failed to dial bot websocket: %w", err)
	}

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})
	ws.SetReadDeadline(time.Now().Add(readTimeout))

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	if c.events.TransportState != nil {
		c.events.TransportState("connected")
	}
	if c.events.Connected != nil {
		c.events.Connected()
	}

	go c.readLoop(ws)
	go c.keepAlive(ws)

	return c.send("", typeClientReady, nil)
}

// connect POSTs the session configuration to the backend.
func (c *Client) connect(cfg session.Config) (*connectResponse, error) {
	body := value.Object{
		{Key: "services", Value: servicesValue(cfg.Services)},
		{Key: "config", Value: configValue(cfg.Config)},
	}
	for _, param := range cfg.CustomBodyParams {
		body = body.Set(param.Key, param.Value)
	}

	payload, err := value.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode connect request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, h := range cfg.CustomHeaders {
		req.Header.Set(h.Name, h.Value)
	}

	httpResp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read connect response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("connect failed: %s: %s", httpResp.Status, strings.TrimSpace(string(raw)))
	}

	var resp connectResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse connect response: %w", err)
	}
	if resp.WSURL == "" {
		return nil, fmt.Errorf("connect response missing ws_url")
	}
	return &resp, nil
}

func servicesValue(services []session.ServiceRegistration) value.Value {
	out := make(value.Array, 0, len(services))
	for _, s := range services {
		out = append(out, value.Object{
			{Key: "service", Value: value.Str(s.Service)},
			{Key: "value", Value: value.Str(s.Value)},
		})
	}
	return out
}

func configValue(configs []session.ServiceConfig) value.Value {
	out := make(value.Array, 0, len(configs))
	for _, sc := range configs {
		options := make(value.Array, 0, len(sc.Options))
		for _, opt := range sc.Options {
			options = append(options, value.Object{
				{Key: "name", Value: value.Str(opt.Name)},
				{Key: "value", Value: opt.Value},
			})
		}
		out = append(out, value.Object{
			{Key: "service", Value: value.Str(sc.Service)},
			{Key: "options", Value: options},
		})
	}
	return out
}

// Disconnect asks the bot to end the session and closes the socket. The
// Disconnected event fires once the read loop observes the close.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Best effort; the socket may already be gone.
	c.send("", typeDisconnectBot, nil)

	c.wsMu.Lock()
	ws := c.ws
	c.wsMu.Unlock()
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		ws.Close()
	}

	if c.events.Disconnected != nil {
		c.events.Disconnected()
	}
	return nil
}

// Release frees the socket if Disconnect never ran.
func (c *Client) Release() {
	c.wsMu.Lock()
	ws := c.ws
	c.ws = nil
	c.wsMu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

// EnableMic toggles the microphone input on the bot side.
func (c *Client) EnableMic(enabled bool) error {
	return c.sendData("", typeEnableMic, enableData{Enable: enabled})
}

// EnableCam toggles the camera input on the bot side.
func (c *Client) EnableCam(enabled bool) error {
	return c.sendData("", typeEnableCam, enableData{Enable: enabled})
}

// DescribeActions queries the backend's advertised actions. The callback
// fires from the read loop when the matching response arrives.
func (c *Client) DescribeActions(callback func([]session.ActionDescription, error)) {
	id := uuid.NewString()

	c.mu.Lock()
	c.pending[id] = callback
	c.mu.Unlock()

	if err := c.send(id, typeDescribeActions, nil); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		callback(nil, err)
	}
}

// SendAction dispatches a backend action.
func (c *Client) SendAction(service, action string, args value.Object) error {
	arguments := make([]actionArgument, 0, len(args))
	for _, field := range args {
		raw, err := value.Marshal(field.Value)
		if err != nil {
			return fmt.Errorf("failed to encode action argument %q: %w", field.Key, err)
		}
		arguments = append(arguments, actionArgument{Name: field.Key, Value: raw})
	}
	return c.sendData(uuid.NewString(), typeAction, actionData{
		Service:   service,
		Action:    action,
		Arguments: arguments,
	})
}

// Expiry reports the backend-imposed session deadline.
func (c *Client) Expiry() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry, !c.expiry.IsZero()
}

func (c *Client) sendData(id, msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msgType, err)
	}
	return c.send(id, msgType, raw)
}

func (c *Client) send(id, msgType string, data json.RawMessage) error {
	payload, err := json.Marshal(envelope{ID: id, Label: rtviLabel, Type: msgType, Data: data})
	if err != nil {
		return err
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) keepAlive(ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		c.wsMu.Lock()
		err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		c.wsMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()

			if !closed {
				log.Warn("rtvi: connection lost", "error", err)
				if c.events.Disconnected != nil {
					c.events.Disconnected()
				}
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("rtvi: undecodable message", "error", err)
			continue
		}
		if msg.Label != rtviLabel {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg envelope) {
	switch msg.Type {

	case typeBotReady:
		var data botReadyData
		json.Unmarshal(msg.Data, &data)
		if c.events.BotReady != nil {
			c.events.BotReady(data.Version)
		}

	case typeError:
		var data errorData
		json.Unmarshal(msg.Data, &data)
		if c.events.BackendError != nil {
			c.events.BackendError(data.Message)
		}

	case typeMetrics:
		if c.events.Metrics != nil {
			if v, err := value.FromJSON(msg.Data); err == nil {
				c.events.Metrics(v)
			}
		}

	case typeUserTranscription:
		var data transcriptData
		json.Unmarshal(msg.Data, &data)
		if c.events.UserTranscript != nil {
			c.events.UserTranscript(data.Text, data.Final)
		}

	case typeBotTranscription:
		var data transcriptData
		json.Unmarshal(msg.Data, &data)
		if c.events.BotTranscript != nil {
			c.events.BotTranscript(data.Text)
		}

	case typeUserStartedSpeaking:
		if c.events.UserStartedSpeaking != nil {
			c.events.UserStartedSpeaking()
		}

	case typeUserStoppedSpeaking:
		if c.events.UserStoppedSpeaking != nil {
			c.events.UserStoppedSpeaking()
		}

	case typeBotStartedSpeaking:
		if c.events.BotStartedSpeaking != nil {
			c.events.BotStartedSpeaking()
		}

	case typeBotStoppedSpeaking:
		if c.events.BotStoppedSpeaking != nil {
			c.events.BotStoppedSpeaking()
		}

	case typeUserAudioLevel:
		var data audioLevelData
		json.Unmarshal(msg.Data, &data)
		if c.events.UserAudioLevel != nil {
			c.events.UserAudioLevel(data.Level)
		}

	case typeBotAudioLevel:
		var data audioLevelData
		json.Unmarshal(msg.Data, &data)
		if c.events.BotAudioLevel != nil {
			c.events.BotAudioLevel(data.Level)
		}

	case typeTracksUpdated:
		var data tracksData
		json.Unmarshal(msg.Data, &data)
		if c.events.TracksUpdated != nil {
			c.events.TracksUpdated(session.Tracks{
				LocalAudio: data.Local.Audio,
				LocalVideo: data.Local.Video,
				BotAudio:   data.Bot.Audio,
				BotVideo:   data.Bot.Video,
			})
		}

	case typeInputsUpdated:
		var data inputsData
		json.Unmarshal(msg.Data, &data)
		if c.events.InputsUpdated != nil {
			c.events.InputsUpdated(data.Camera, data.Mic)
		}

	case typeActionsAvailable:
		c.resolveActions(msg)

	case typeActionResponse:
		log.Debug("rtvi: action response", "id", msg.ID)

	case typeFunctionCall:
		c.handleFunctionCall(msg)

	default:
		log.Debug("rtvi: ignoring message", "type", msg.Type)
	}
}

func (c *Client) resolveActions(msg envelope) {
	c.mu.Lock()
	callback, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if !ok {
		return
	}

	var data struct {
		Actions []session.ActionDescription `json:"actions"`
	}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		callback(nil, fmt.Errorf("failed to parse actions: %w", err))
		return
	}
	callback(data.Actions, nil)
}

func (c *Client) handleFunctionCall(msg envelope) {
	if c.events.FunctionCall == nil {
		return
	}

	var data functionCallData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		log.Warn("rtvi: undecodable function call", "error", err)
		return
	}

	args := value.Value(value.Null{})
	if len(data.Args) > 0 {
		if parsed, err := value.FromJSON(data.Args); err == nil {
			args = parsed
		}
	}

	call := session.FunctionCall{Name: data.FunctionName, Args: args}
	c.events.FunctionCall(call, func(result value.Value) {
		raw, err := value.Marshal(result)
		if err != nil {
			log.Error("rtvi: failed to encode function call result", "name", data.FunctionName, "error", err)
			return
		}
		err = c.sendData(uuid.NewString(), typeFunctionCallResult, functionCallResultData{
			FunctionName: data.FunctionName,
			ToolCallID:   data.ToolCallID,
			Arguments:    data.Args,
			Result:       raw,
		})
		if err != nil {
			log.Error("rtvi: failed to send function call result", "name", data.FunctionName, "error", err)
		}
	})
}
