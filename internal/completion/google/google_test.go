// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sigil-dev/chatrelay/internal/completion"
	"github.com/sigil-dev/chatrelay/internal/completion/google"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGoogleClient_MissingAPIKey(t *testing.T) {
	_, err := google.New(context.Background(), completion.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, completion.IsServiceInit(err))
}

func TestGoogleClient_DefaultsModel(t *testing.T) {
	c := mustNewClient(t, "")
	assert.Equal(t, "google", c.Backend())
	assert.Equal(t, "gemini-2.5-flash", c.Model())
}

func TestGoogleClient_CreateConversationDistinctHandles(t *testing.T) {
	c := mustNewClient(t, "")
	a, err := c.CreateConversation(context.Background())
	require.NoError(t, err)
	b, err := c.CreateConversation(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

type foreign struct{}

func (foreign) ID() string { return "x" }

func TestGoogleClient_RejectsForeignHandle(t *testing.T) {
	c := mustNewClient(t, "")
	_, err := c.SendTurn(context.Background(), foreign{}, "hi")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeCompletionHandleInvalid))
}

func TestBuildConfig(t *testing.T) {
	assert.Nil(t, google.BuildConfig(completion.Options{}))

	cfg := google.BuildConfig(completion.Options{SystemPrompt: "be brief", MaxOutputTokens: 256})
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{name: "nil response", resp: nil, want: ""},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ""},
		{
			name: "nil content",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}},
			want: "",
		},
		{
			name: "joins text parts and skips thoughts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking...", Thought: true},
					{Text: "Hello, "},
					nil,
					{Text: "world"},
				}},
			}}},
			want: "Hello, world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, google.ResponseText(tt.resp))
		})
	}
}

func TestClassify(t *testing.T) {
	remote := google.Classify(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}), "sending")
	assert.True(t, completion.IsRemoteAPI(remote))
	assert.Equal(t, 429, relayerr.FieldsOf(remote)["status_code"])

	other := google.Classify(errors.New("dial tcp: refused"), "sending")
	assert.False(t, completion.IsRemoteAPI(other))
	assert.True(t, relayerr.HasCode(other, relayerr.CodeCompletionTurnFailure))

	timeout := google.Classify(context.DeadlineExceeded, "sending")
	assert.True(t, relayerr.IsTimeout(timeout))
}

// fakeGemini serves generateContent requests from a queue of canned
// responses and records the number of contents sent with each request.
type fakeGemini struct {
	mu        sync.Mutex
	responses []cannedResponse
	contents  []int
}

type cannedResponse struct {
	status int
	body   string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var req struct {
		Contents []json.RawMessage `json:"contents"`
	}
	_ = json.Unmarshal(raw, &req)

	f.mu.Lock()
	f.contents = append(f.contents, len(req.Contents))
	resp := cannedResponse{status: http.StatusOK, body: textBody("default")}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func textBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
			"finishReason": "STOP",
		}},
	})
	return string(b)
}

const quotaBody = `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`

func TestGoogleClient_SendTurnAgainstFakeServer(t *testing.T) {
	fake := &fakeGemini{responses: []cannedResponse{
		{status: http.StatusOK, body: textBody("hi there")},
		{status: http.StatusTooManyRequests, body: quotaBody},
		{status: http.StatusOK, body: `{"candidates":[]}`},
		{status: http.StatusOK, body: textBody("still here")},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := mustNewClient(t, srv.URL+"/")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)

	reply, err := c.SendTurn(ctx, conv, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	_, err = c.SendTurn(ctx, conv, "more")
	require.Error(t, err)
	assert.True(t, completion.IsRemoteAPI(err), "429 should be a remote rejection, got %v", err)

	reply, err = c.SendTurn(ctx, conv, "anything?")
	require.NoError(t, err)
	assert.Empty(t, reply)

	reply, err = c.SendTurn(ctx, conv, "continue")
	require.NoError(t, err)
	assert.Equal(t, "still here", reply)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.contents, 4)
	assert.Equal(t, 1, fake.contents[0], "first turn carries only the prompt")
	assert.Greater(t, fake.contents[3], fake.contents[0], "later turns carry the accepted history")
}

func TestGoogleClient_GenerateOnceAgainstFakeServer(t *testing.T) {
	fake := &fakeGemini{responses: []cannedResponse{{status: http.StatusOK, body: textBody("one shot")}}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := mustNewClient(t, srv.URL+"/")
	reply, err := c.GenerateOnce(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "one shot", reply)
}

// mustNewClient creates a client with a dummy API key for unit tests.
func mustNewClient(t *testing.T, baseURL string) *google.Client {
	t.Helper()
	c, err := google.New(context.Background(), completion.Options{
		APIKey:  "test-key-not-real",
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return c
}
