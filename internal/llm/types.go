package llm

// Message represents a single message in a chat conversation.
// Role is one of "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatParams holds generation parameters for chat completion requests.
// Nil fields are left to the provider's defaults.
type ChatParams struct {
	// Temperature controls the randomness of the output.
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// TopP is the nucleus sampling probability mass.
	TopP *float32 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	// PresencePenalty penalizes tokens that already appeared.
	PresencePenalty *float32 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`

	// FrequencyPenalty penalizes tokens proportionally to their frequency.
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`

	// MaxTokens limits the number of generated tokens. Nil means no limit.
	MaxTokens *int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// WithTemperature returns a copy of p with the temperature set.
func (p ChatParams) WithTemperature(t float32) ChatParams {
	p.Temperature = &t
	return p
}

// WithMaxTokens returns a copy of p with the token limit set.
func (p ChatParams) WithMaxTokens(n int) ChatParams {
	p.MaxTokens = &n
	return p
}
