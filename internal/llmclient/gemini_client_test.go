package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// fakeGenerate records calls and replays scripted replies.
type fakeGenerate struct {
	calls    int
	contents [][]*genai.Content
	configs  []*genai.GenerateContentConfig
	replies  []func() (*genai.GenerateContentResponse, error)
}

func (f *fakeGenerate) fn(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = append(f.contents, contents)
	f.configs = append(f.configs, cfg)
	reply := f.replies[len(f.replies)-1]
	if f.calls < len(f.replies) {
		reply = f.replies[f.calls]
	}
	f.calls++
	return reply()
}

func textReply(text string) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      genai.NewContentFromText(text, genai.RoleModel),
				FinishReason: genai.FinishReasonStop,
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     12,
				CandidatesTokenCount: 3,
				TotalTokenCount:      15,
			},
		}, nil
	}
}

func errReply(err error) func() (*genai.GenerateContentResponse, error) {
	return func() (*genai.GenerateContentResponse, error) { return nil, err }
}

func setupGeminiClient(t *testing.T, replies ...func() (*genai.GenerateContentResponse, error)) (*GeminiClient, *fakeGenerate, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	fake := &fakeGenerate{replies: replies}
	client := newGeminiClient(fake.fn, getValidVisionConfig(), "test-model", zap.New(core))
	client.maxElapsed = 5 * time.Second
	return client, fake, logs
}

func TestGeminiGenerate_Success(t *testing.T) {
	client, fake, logs := setupGeminiClient(t, textReply(`{"reasoning":"ok"}`))

	req := schemas.GenerationRequest{
		SystemPrompt: "You are a desktop agent.",
		UserPrompt:   "Task: open chrome",
		Images:       []schemas.ImagePart{{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	}
	out, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"reasoning":"ok"}`, out)

	require.Equal(t, 1, fake.calls)
	parts := fake.contents[0][0].Parts
	require.Len(t, parts, 2, "image part followed by the text prompt")
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, "Task: open chrome", parts[1].Text)

	cfg := fake.configs[0]
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Equal(t, int32(1000), cfg.MaxOutputTokens, "falls back to the configured max tokens")
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "You are a desktop agent.", cfg.SystemInstruction.Parts[0].Text)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "LLM generation complete (Gemini)", entry.Message)
	assert.EqualValues(t, 15, entry.ContextMap()["total_tokens"])
}

func TestGeminiGenerate_RequestOptionsOverrideDefaults(t *testing.T) {
	client, fake, _ := setupGeminiClient(t, textReply("fine"))

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{
		UserPrompt: "hi",
		Options:    schemas.GenerationOptions{Temperature: 0.9, MaxTokens: 50},
	})
	require.NoError(t, err)
	cfg := fake.configs[0]
	assert.InDelta(t, 0.9, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(50), cfg.MaxOutputTokens)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Empty(t, cfg.ResponseMIMEType)
}

func TestGeminiGenerate_RetriesTransientErrors(t *testing.T) {
	client, fake, _ := setupGeminiClient(t,
		errReply(genai.APIError{Code: 503, Message: "overloaded"}),
		textReply("recovered"),
	)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, fake.calls)
}

func TestGeminiGenerate_PermanentErrors(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		client, fake, _ := setupGeminiClient(t, errReply(genai.APIError{Code: 400, Message: "bad request"}))

		_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("safety block is not retried", func(t *testing.T) {
		client, fake, _ := setupGeminiClient(t, func() (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}, nil
		})

		_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blocked the request")
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("no candidates", func(t *testing.T) {
		client, _, _ := setupGeminiClient(t, func() (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		})

		_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no candidates")
	})
}

func TestGeminiGenerate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client, fake, _ := setupGeminiClient(t, errReply(errors.New("dial tcp: operation was canceled")))

	_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, fake.calls, 1)
}

func TestGeminiClose(t *testing.T) {
	client, _, _ := setupGeminiClient(t, textReply(""))
	assert.NoError(t, client.Close())
}
