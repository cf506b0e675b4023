package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"chat-api/internal/domain"
)

// converseAPI is the minimal Bedrock Runtime interface required by Client.
// *bedrockruntime.Client from aws-sdk-go-v2 satisfies this interface.
type converseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client invokes models through the Bedrock Converse API.
type Client struct {
	api converseAPI
}

// New creates a Client with the given Converse API implementation.
func New(api converseAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Converse sends the conversation to the model and returns the first text
// segment of its reply. A response without the expected message shape yields
// an empty string rather than an error.
func (c *Client) Converse(ctx context.Context, req domain.InferenceRequest) (string, error) {
	if strings.TrimSpace(req.ModelID) == "" {
		return "", errors.New("bedrock: model id must not be empty")
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelID),
		Messages: toMessages(req.Messages),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(req.Config.MaxTokens),
			Temperature: aws.Float32(req.Config.Temperature),
			TopP:        aws.Float32(req.Config.TopP),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		in.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("bedrock: converse %s: %w", req.ModelID, err)
	}
	return replyText(out), nil
}

func toMessages(msgs []domain.ChatMessage) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]types.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: b.Text})
		}
		out = append(out, types.Message{
			Role:    types.ConversationRole(m.Role),
			Content: blocks,
		})
	}
	return out
}

func replyText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return ""
	}
	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return ""
	}
	return text.Value
}
