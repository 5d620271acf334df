package session

import (
	"time"

	"github.com/openvalet/go-valet/pkg/value"
)

// ServiceRegistration names a backend service and the provider fulfilling it.
type ServiceRegistration struct {
	Service string `json:"service"`
	Value   string `json:"value"`
}

// Option is one configuration entry for a service.
type Option struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// ServiceConfig carries the options for one registered service.
type ServiceConfig struct {
	Service string   `json:"service"`
	Options []Option `json:"options"`
}

// Header is a custom HTTP header sent with the connect request.
type Header struct {
	Name  string
	Value string
}

// Config is everything the transport needs to bring a session up.
type Config struct {
	Services         []ServiceRegistration
	Config           []ServiceConfig
	EnableMic        bool
	EnableCam        bool
	CustomHeaders    []Header
	CustomBodyParams value.Object
}

// ActionArgument describes one parameter of a backend action.
type ActionArgument struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ActionDescription is a backend-advertised action.
type ActionDescription struct {
	Service   string           `json:"service"`
	Action    string           `json:"action"`
	Arguments []ActionArgument `json:"arguments"`
	Result    string           `json:"result"`
}

// FunctionCall is a model-initiated tool invocation arriving from the
// transport.
type FunctionCall struct {
	Name string
	Args value.Value
}

// Tracks reports which media tracks are live.
type Tracks struct {
	LocalAudio bool
	LocalVideo bool
	BotAudio   bool
	BotVideo   bool
}

// Events receives transport callbacks. Nil fields are skipped. Callbacks
// arrive on transport goroutines; the Manager marshals them under its
// mutex.
type Events struct {
	TransportState      func(state string)
	BackendError        func(message string)
	BotReady            func(version string)
	Metrics             func(data value.Value)
	UserTranscript      func(text string, final bool)
	BotTranscript       func(text string)
	BotStartedSpeaking  func()
	BotStoppedSpeaking  func()
	UserStartedSpeaking func()
	UserStoppedSpeaking func()
	TracksUpdated       func(tracks Tracks)
	InputsUpdated       func(camera, mic bool)
	Connected           func()
	Disconnected        func()
	UserAudioLevel      func(level float64)
	BotAudioLevel       func(level float64)

	// FunctionCall must eventually invoke onResult exactly once with the
	// tool's result value.
	FunctionCall func(call FunctionCall, onResult func(value.Value))
}

// Connection is the transport boundary. The session layer owns the
// lifecycle; implementations own the wire.
type Connection interface {
	// Start brings the session up. It may return before the session is
	// ready; readiness arrives via Events.BotReady.
	Start(cfg Config) error

	// Disconnect tears the session down. Events.Disconnected fires when
	// teardown completes.
	Disconnect() error

	// Release frees transport resources. Call exactly once, after the
	// final disconnect.
	Release()

	EnableMic(enabled bool) error
	EnableCam(enabled bool) error

	// DescribeActions asynchronously queries the backend's advertised
	// actions.
	DescribeActions(callback func([]ActionDescription, error))

	// SendAction dispatches a backend action.
	SendAction(service, action string, args value.Object) error

	// Expiry reports the backend-imposed session deadline, if known.
	Expiry() (time.Time, bool)
}

// Factory builds a Connection to the given backend, wired to the given
// event sink.
type Factory func(baseURL string, events *Events) (Connection, error)
