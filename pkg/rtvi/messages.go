package rtvi

import (
	"encoding/json"
)

// rtviLabel marks every envelope on the wire.
const rtviLabel = "rtvi-ai"

// Inbound and outbound message types.
const (
	typeClientReady         = "client-ready"
	typeDescribeActions     = "describe-actions"
	typeActionsAvailable    = "actions-available"
	typeAction              = "action"
	typeActionResponse      = "action-response"
	typeEnableMic           = "enable-mic"
	typeEnableCam           = "enable-cam"
	typeDisconnectBot       = "disconnect-bot"
	typeBotReady            = "bot-ready"
	typeError               = "error"
	typeMetrics             = "metrics"
	typeUserTranscription   = "user-transcription"
	typeBotTranscription    = "bot-transcription"
	typeUserStartedSpeaking = "user-started-speaking"
	typeUserStoppedSpeaking = "user-stopped-speaking"
	typeBotStartedSpeaking  = "bot-started-speaking"
	typeBotStoppedSpeaking  = "bot-stopped-speaking"
	typeUserAudioLevel      = "user-audio-level"
	typeBotAudioLevel       = "bot-audio-level"
	typeTracksUpdated       = "tracks-updated"
	typeInputsUpdated       = "inputs-updated"
	typeFunctionCall        = "llm-function-call"
	typeFunctionCallResult  = "llm-function-call-result"
)

// envelope is the wire frame for every message in both directions.
type envelope struct {
	ID    string          `json:"id,omitempty"`
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type botReadyData struct {
	Version string          `json:"version"`
	Config  json.RawMessage `json:"config"`
}

type errorData struct {
	Message string `json:"message"`
}

type transcriptData struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type audioLevelData struct {
	Level float64 `json:"level"`
}

type tracksData struct {
	Local struct {
		Audio bool `json:"audio"`
		Video bool `json:"video"`
	} `json:"local"`
	Bot struct {
		Audio bool `json:"audio"`
		Video bool `json:"video"`
	} `json:"bot"`
}

type inputsData struct {
	Camera bool `json:"camera"`
	Mic    bool `json:"mic"`
}

type functionCallData struct {
	FunctionName string          `json:"function_name"`
	ToolCallID   string          `json:"tool_call_id"`
	Args         json.RawMessage `json:"args"`
}

type functionCallResultData struct {
	FunctionName string          `json:"function_name"`
	ToolCallID   string          `json:"tool_call_id"`
	Arguments    json.RawMessage `json:"arguments"`
	Result       json.RawMessage `json:"result"`
}

type enableData struct {
	Enable bool `json:"enable"`
}

type actionData struct {
	Service   string           `json:"service"`
	Action    string           `json:"action"`
	Arguments []actionArgument `json:"arguments"`
}

type actionArgument struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}
