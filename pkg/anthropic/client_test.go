package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{TextMessage("user", "hello")},
	}
	mc.On("CreateMessage", ctx, req).Return(&MessageResponse{
		ID:      "msg_123",
		Content: []ContentBlock{{Type: "text", Text: "hi there"}},
	}, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "hi there", resp.Text())
	mc.AssertExpectations(t)
}

func TestMessageResponse_Text_ConcatenatesTextBlocks(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: `{"vendor`},
		{Type: "tool_use"},
		{Type: "text", Text: `_name":"ABC"}`},
	}}
	assert.Equal(t, `{"vendor_name":"ABC"}`, resp.Text())
}

func TestTextMessage(t *testing.T) {
	msg := TextMessage("assistant", "done")
	assert.Equal(t, "assistant", msg.Role)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "text", msg.Content[0].Type)
	assert.Equal(t, "done", msg.Content[0].Text)
}

func TestDocumentAndImageBlocks(t *testing.T) {
	doc := DocumentBlock("cGRmZGF0YQ==")
	assert.Equal(t, "document", doc.Type)
	assert.Equal(t, "cGRmZGF0YQ==", doc.Data)

	img := ImageBlock("image/png", "aW1n")
	assert.Equal(t, "image", img.Type)
	assert.Equal(t, "image/png", img.MediaType)
}

func TestCachedSystemBlocks(t *testing.T) {
	blocks := CachedSystemBlocks("extract invoice fields")
	require.Len(t, blocks, 1)
	assert.Equal(t, "extract invoice fields", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestEstimateCost_KnownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 3.00+1.50, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000}
	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	usage := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	// Cache writes bill at 1.25x input, cache reads at 0.1x input.
	assert.InDelta(t, 3.00*1.25+3.00*0.1, cost, 0.001)
}

func TestToSDKMessages_Multimodal(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: []Block{
			DocumentBlock("cGRm"),
			{Type: "text", Text: "Extract the fields."},
		}},
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Len(t, msgs[0].Content, 2)
}
