package domain

// ContentBlock is one segment of a chat message. Type is set to "text" on
// history loaded from the store and left empty on backend-bound messages.
type ContentBlock struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// ChatMessage is the provider-agnostic chat message shape used by the use case
// and the inference integrations.
type ChatMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// FirstText returns the text of the first content block, or "" when there is none.
func (m ChatMessage) FirstText() string {
	if len(m.Content) == 0 {
		return ""
	}
	return m.Content[0].Text
}

// InferenceConfig holds the sampling parameters sent with every request.
type InferenceConfig struct {
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// DefaultInferenceConfig returns the fixed configuration used for replies.
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		MaxTokens:   300,
		Temperature: 0.4,
		TopP:        0.9,
	}
}

// InferenceRequest is everything a backend needs to produce one reply.
type InferenceRequest struct {
	ModelID  string
	System   string
	Messages []ChatMessage
	Config   InferenceConfig
}
