package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"chat-api/internal/domain"
)

type fakeConverse struct {
	out    *bedrockruntime.ConverseOutput
	err    error
	lastIn *bedrockruntime.ConverseInput
	calls  int
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastIn = in
	f.calls++
	return f.out, f.err
}

func textOutput(texts ...string) *bedrockruntime.ConverseOutput {
	blocks := make([]types.ContentBlock, 0, len(texts))
	for _, t := range texts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{Role: types.ConversationRoleAssistant, Content: blocks},
		},
	}
}

func userMessage(text string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleUser, Content: []domain.ContentBlock{{Text: text}}}
}

func newRequest(msgs ...domain.ChatMessage) domain.InferenceRequest {
	return domain.InferenceRequest{
		ModelID:  "anthropic.claude-3-haiku",
		Messages: msgs,
		Config:   domain.DefaultInferenceConfig(),
	}
}

func mustNew(t *testing.T, api *fakeConverse) *Client {
	t.Helper()
	c, err := New(api)
	require.NoError(t, err)
	return c
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestConverse_HappyPath(t *testing.T) {
	api := &fakeConverse{out: textOutput("Hello there", "ignored")}
	c := mustNew(t, api)

	reply, err := c.Converse(context.Background(), newRequest(
		domain.ChatMessage{Role: domain.RoleUser, Content: []domain.ContentBlock{{Text: "earlier"}}},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: []domain.ContentBlock{{Text: "answer"}}},
		userMessage("hi"),
	))
	require.NoError(t, err)
	require.Equal(t, "Hello there", reply)

	in := api.lastIn
	require.Equal(t, "anthropic.claude-3-haiku", *in.ModelId)
	require.Len(t, in.Messages, 3)
	require.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	require.Equal(t, types.ConversationRoleAssistant, in.Messages[1].Role)
	require.Equal(t, "hi", in.Messages[2].Content[0].(*types.ContentBlockMemberText).Value)
	require.Empty(t, in.System)
}

func TestConverse_InferenceConfig(t *testing.T) {
	api := &fakeConverse{out: textOutput("ok")}
	c := mustNew(t, api)

	_, err := c.Converse(context.Background(), newRequest(userMessage("hi")))
	require.NoError(t, err)
	cfg := api.lastIn.InferenceConfig
	require.Equal(t, int32(300), *cfg.MaxTokens)
	require.InDelta(t, 0.4, *cfg.Temperature, 1e-6)
	require.InDelta(t, 0.9, *cfg.TopP, 1e-6)
}

func TestConverse_SystemPrompt(t *testing.T) {
	api := &fakeConverse{out: textOutput("ok")}
	c := mustNew(t, api)

	req := newRequest(userMessage("hi"))
	req.System = "  Be brief.  "
	_, err := c.Converse(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, api.lastIn.System, 1)
	require.Equal(t, "Be brief.", api.lastIn.System[0].(*types.SystemContentBlockMemberText).Value)
}

func TestConverse_EmptyModel(t *testing.T) {
	api := &fakeConverse{}
	c := mustNew(t, api)
	req := newRequest(userMessage("hi"))
	req.ModelID = " "
	_, err := c.Converse(context.Background(), req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model id")
	require.Zero(t, api.calls)
}

func TestConverse_APIError(t *testing.T) {
	api := &fakeConverse{err: errors.New("ThrottlingException")}
	c := mustNew(t, api)
	_, err := c.Converse(context.Background(), newRequest(userMessage("hi")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bedrock: converse")
	require.Contains(t, err.Error(), "ThrottlingException")
}

func TestConverse_LenientOnUnexpectedShapes(t *testing.T) {
	cases := []struct {
		name string
		out  *bedrockruntime.ConverseOutput
	}{
		{name: "nil output", out: nil},
		{name: "missing message", out: &bedrockruntime.ConverseOutput{}},
		{name: "empty content", out: textOutput()},
		{name: "non-text first block", out: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{Value: types.Message{
				Content: []types.ContentBlock{&types.ContentBlockMemberImage{}},
			}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mustNew(t, &fakeConverse{out: tc.out})
			reply, err := c.Converse(context.Background(), newRequest(userMessage("hi")))
			require.NoError(t, err)
			require.Equal(t, "", reply)
		})
	}
}
