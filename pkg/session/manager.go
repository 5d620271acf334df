package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/facts"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

// State is the session lifecycle phase. Ended is terminal; build a new
// Manager for the next session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshot is a point-in-time copy of the observable session state.
type Snapshot struct {
	State          State
	TransportState string
	BotReady       bool
	BotIsTalking   bool
	UserIsTalking  bool
	BotAudioLevel  float64
	UserAudioLevel float64
	Mic            bool
	Camera         bool
	Tracks         Tracks
	Expiry         *time.Time
	Actions        []ActionDescription
	Errors         []string
	ChatLog        []Entry
}

// ManagerConfig wires a Manager's collaborators.
type ManagerConfig struct {
	Registry  *tools.Registry
	Facts     *facts.Memory
	Connect   Factory
	OpenAIKey string

	// OnEnd fires exactly once when the session reaches Ended.
	OnEnd func()
}

// Manager drives one session from connect to disconnect. All mutation is
// serialized under its mutex; transport callbacks and async tool results
// marshal back through it.
type Manager struct {
	mu sync.Mutex

	registry  *tools.Registry
	facts     *facts.Memory
	connect   Factory
	openAIKey string
	onEnd     func()

	state          State
	conn           Connection
	released       bool
	transportState string
	botReady       bool
	botIsTalking   bool
	userIsTalking  bool
	botAudioLevel  float64
	userAudioLevel float64
	mic            bool
	camera         bool
	tracks         Tracks
	expiry         *time.Time
	actions        []ActionDescription
	errors         []string
	chatLog        ChatLog
	connectStart   time.Time

	observers []func()
	now       func() time.Time
}

// NewManager returns an Idle manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		registry:  cfg.Registry,
		facts:     cfg.Facts,
		connect:   cfg.Connect,
		openAIKey: cfg.OpenAIKey,
		onEnd:     cfg.OnEnd,
		state:     StateIdle,
		now:       time.Now,
	}
}

// Start connects the session. apiKey is the Daily Bots key; an empty key
// or missing OpenAI key ends the session immediately with a user-visible
// error.
func (m *Manager) Start(baseURL, apiKey string, initOpts InitOptions, runtimeOpts RuntimeOptions) {
	m.mu.Lock()

	if m.conn != nil {
		onEnd := m.onEnd
		m.mu.Unlock()
		if onEnd != nil {
			onEnd()
		}
		return
	}

	if apiKey == "" || m.openAIKey == "" {
		m.errors = append(m.errors, "Please ensure both API keys (Daily Bots and OpenAI) are set.")
		m.endLocked()
		return
	}

	m.connectStart = m.now()
	m.state = StateConnecting

	prompt := renderPrompt(m.facts.AllKeywordsJSON(), m.connectStart)

	toolDefs, err := value.FromGo(m.registry.OpenAIDefinitions())
	if err != nil {
		m.errors = append(m.errors, fmt.Sprintf("failed to encode tool definitions: %v", err))
		m.endLocked()
		return
	}

	cfg := Config{
		Services: []ServiceRegistration{
			{Service: "tts", Value: initOpts.TTSProvider},
			{Service: "llm", Value: initOpts.LLMProvider},
		},
		Config: []ServiceConfig{
			{Service: "tts", Options: []Option{
				{Name: "voice", Value: value.Str(runtimeOpts.TTSVoice)},
			}},
			{Service: "llm", Options: []Option{
				{Name: "model", Value: value.Str(runtimeOpts.LLMModel)},
				{Name: "initial_messages", Value: value.Array{
					value.Object{
						{Key: "role", Value: value.Str("system")},
						{Key: "content", Value: value.Str(prompt)},
					},
				}},
				{Name: "tools", Value: toolDefs},
			}},
		},
		CustomHeaders: []Header{{Name: "Authorization", Value: "Bearer " + apiKey}},
		CustomBodyParams: value.Object{
			{Key: "bot_profile", Value: value.Str(initOpts.BotProfile)},
			{Key: "max_duration", Value: value.Number(maxSessionDuration)},
			{Key: "api_keys", Value: value.Object{
				{Key: "openai", Value: value.Str(m.openAIKey)},
			}},
		},
	}

	conn, err := m.connect(baseURL, m.events())
	if err != nil {
		m.errors = append(m.errors, fmt.Sprintf("failed to create connection: %v", err))
		m.endLocked()
		return
	}
	m.conn = conn
	m.mu.Unlock()
	m.notify()

	log.Info("session: connecting", "base_url", baseURL, "bot_profile", initOpts.BotProfile)

	if err := conn.Start(cfg); err != nil {
		m.mu.Lock()
		m.errors = append(m.errors, err.Error())
		m.endLocked()
	}
}

// Stop disconnects the session. Safe to call at any time; a nil
// connection is a no-op. The reference is detached first so a concurrent
// disconnect event cannot release twice.
func (m *Manager) Stop() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return
	}

	if err := conn.Disconnect(); err != nil {
		m.mu.Lock()
		m.errors = append(m.errors, err.Error())
		m.mu.Unlock()
		m.notify()
	}
	m.releaseOnce(conn)
}

// EnableMic toggles the local microphone.
func (m *Manager) EnableMic(enabled bool) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.EnableMic(enabled); err != nil {
		m.addError(err.Error())
	}
}

// EnableCam toggles the local camera.
func (m *Manager) EnableCam(enabled bool) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.EnableCam(enabled); err != nil {
		m.addError(err.Error())
	}
}

// SendAction dispatches a backend action over the live connection.
func (m *Manager) SendAction(service, action string, args value.Object) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	return conn.SendAction(service, action, args)
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:          m.state,
		TransportState: m.transportState,
		BotReady:       m.botReady,
		BotIsTalking:   m.botIsTalking,
		UserIsTalking:  m.userIsTalking,
		BotAudioLevel:  m.botAudioLevel,
		UserAudioLevel: m.userAudioLevel,
		Mic:            m.mic,
		Camera:         m.camera,
		Tracks:         m.tracks,
		Actions:        append([]ActionDescription(nil), m.actions...),
		Errors:         append([]string(nil), m.errors...),
		ChatLog:        m.chatLog.Entries(),
	}
	if m.expiry != nil {
		t := *m.expiry
		snap.Expiry = &t
	}
	return snap
}

// Subscribe registers a change observer. Observers run outside the
// manager mutex and may call Snapshot.
func (m *Manager) Subscribe(observer func()) {
	m.mu.Lock()
	m.observers = append(m.observers, observer)
	m.mu.Unlock()
}

func (m *Manager) notify() {
	m.mu.Lock()
	observers := append([]func(){}, m.observers...)
	m.mu.Unlock()
	for _, observer := range observers {
		observer()
	}
}

func (m *Manager) addError(msg string) {
	m.mu.Lock()
	m.errors = append(m.errors, msg)
	m.mu.Unlock()
	m.notify()
}

// endLocked transitions to Ended exactly once. Caller holds the mutex;
// endLocked releases it.
func (m *Manager) endLocked() {
	if m.state == StateEnded {
		m.mu.Unlock()
		return
	}
	m.state = StateEnded
	m.expiry = nil
	m.actions = nil
	m.botIsTalking = false
	m.userIsTalking = false
	m.transportState = ""
	m.botReady = false
	m.tracks = Tracks{}

	conn := m.conn
	m.conn = nil
	onEnd := m.onEnd
	m.onEnd = nil
	m.mu.Unlock()

	if conn != nil {
		m.releaseOnce(conn)
	}
	if onEnd != nil {
		onEnd()
	}
	m.notify()
}

func (m *Manager) releaseOnce(conn Connection) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	m.mu.Unlock()
	conn.Release()
}

// events builds the transport callback sink.
func (m *Manager) events() *Events {
	return &Events{
		TransportState: func(state string) {
			m.mu.Lock()
			m.transportState = state
			m.mu.Unlock()
			m.notify()
		},
		BackendError: func(message string) {
			msg := "Error from backend: " + message
			log.Error("session: backend error", "message", message)
			m.addError(msg)
		},
		BotReady: func(version string) {
			m.mu.Lock()
			m.state = StateActive
			m.botReady = true
			elapsed := m.now().Sub(m.connectStart)
			conn := m.conn
			m.mu.Unlock()

			log.Info("session: bot ready", "version", version, "connect_duration", elapsed)

			if conn != nil {
				conn.DescribeActions(func(actions []ActionDescription, err error) {
					if err != nil {
						m.addError(err.Error())
						return
					}
					m.mu.Lock()
					m.actions = actions
					m.mu.Unlock()
					m.notify()
				})
			}
			m.notify()
		},
		Metrics: func(data value.Value) {
			if raw, err := value.Marshal(data); err == nil {
				log.Debug("session: pipeline metrics", "data", string(raw))
			}
		},
		UserTranscript: func(text string, final bool) {
			m.mu.Lock()
			m.chatLog.AddUser(text, final)
			m.mu.Unlock()
			m.notify()
		},
		BotTranscript: func(text string) {
			m.mu.Lock()
			m.chatLog.AddBot(text)
			m.mu.Unlock()
			m.notify()
		},
		BotStartedSpeaking: func() {
			m.mu.Lock()
			m.botIsTalking = true
			m.mu.Unlock()
			m.notify()
		},
		BotStoppedSpeaking: func() {
			m.mu.Lock()
			m.botIsTalking = false
			m.mu.Unlock()
			m.notify()
		},
		UserStartedSpeaking: func() {
			m.mu.Lock()
			m.userIsTalking = true
			m.mu.Unlock()
			m.notify()
		},
		UserStoppedSpeaking: func() {
			m.mu.Lock()
			m.userIsTalking = false
			m.mu.Unlock()
			m.notify()
		},
		TracksUpdated: func(tracks Tracks) {
			m.mu.Lock()
			m.tracks = tracks
			m.mu.Unlock()
			m.notify()
		},
		InputsUpdated: func(camera, mic bool) {
			m.mu.Lock()
			m.camera = camera
			m.mic = mic
			m.mu.Unlock()
			m.notify()
		},
		Connected: func() {
			m.mu.Lock()
			if m.conn != nil {
				if expiry, ok := m.conn.Expiry(); ok {
					m.expiry = &expiry
				}
			}
			m.mu.Unlock()
			m.notify()
		},
		Disconnected: func() {
			m.mu.Lock()
			m.endLocked()
		},
		UserAudioLevel: func(level float64) {
			m.mu.Lock()
			m.userAudioLevel = level
			m.mu.Unlock()
			m.notify()
		},
		BotAudioLevel: func(level float64) {
			m.mu.Lock()
			m.botAudioLevel = level
			m.mu.Unlock()
			m.notify()
		},
		FunctionCall: m.handleFunctionCall,
	}
}

func (m *Manager) handleFunctionCall(call FunctionCall, onResult func(value.Value)) {
	log.Info("session: function call", "name", call.Name)

	status := tools.NewStatus()
	status.OnChange(func(string) { m.notify() })

	m.mu.Lock()
	m.chatLog.AddFunctionCall(call.Name, status)
	m.mu.Unlock()
	m.notify()

	args, ok := call.Args.(value.Object)
	if !ok {
		onResult(tools.Errorf("`args` must be an object"))
		return
	}

	m.registry.Dispatch(context.Background(), call.Name, args, status, func(result value.Value) {
		// A tool may resolve after the session has ended; the transport
		// is gone, so the result is dropped.
		m.mu.Lock()
		ended := m.state == StateEnded
		m.mu.Unlock()
		if ended {
			log.Warn("session: dropping tool result after session end", "name", call.Name)
			return
		}
		log.Info("session: sending function call result", "name", call.Name)
		onResult(result)
	})
}
