package session

// Provider and model identifiers for the Daily Bots pipeline.
const (
	DefaultBotProfile = "voice_2024_10"

	TTSCartesia = "cartesia"
	LLMOpenAI   = "openai"
	STTDeepgram = "deepgram"

	DefaultTTSVoice    = "79a125e8-cd45-4c13-8a67-188112f4dd22"
	DefaultLLMModel    = "gpt-4o"
	DefaultSTTModel    = "nova-2-general"
	DefaultSTTLanguage = "en"

	// maxSessionDuration is sent as the max_duration body param, in seconds.
	maxSessionDuration = 600
)

// InitOptions selects the providers for a session. Fixed at connect time.
type InitOptions struct {
	BotProfile  string
	TTSProvider string
	LLMProvider string
	STTProvider string
}

// RuntimeOptions selects per-provider models and voices.
type RuntimeOptions struct {
	TTSVoice    string
	LLMModel    string
	STTModel    string
	STTLanguage string
}

// DefaultInitOptions returns the standard provider selection.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		BotProfile:  DefaultBotProfile,
		TTSProvider: TTSCartesia,
		LLMProvider: LLMOpenAI,
		STTProvider: STTDeepgram,
	}
}

// DefaultRuntimeOptions returns the standard model selection.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		TTSVoice:    DefaultTTSVoice,
		LLMModel:    DefaultLLMModel,
		STTModel:    DefaultSTTModel,
		STTLanguage: DefaultSTTLanguage,
	}
}
