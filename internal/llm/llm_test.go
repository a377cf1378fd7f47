package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/llm"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type reply struct {
	text   string
	status int
	prompt chan string
}

func (r *reply) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	if r.prompt != nil {
		r.prompt <- gjson.GetBytes(body, "messages.0.content.0.text").String()
	}
	w.Header().Set("Content-Type", "application/json")
	if r.status != 0 {
		w.WriteHeader(r.status)
		_, _ = w.Write([]byte(
			`{"type":"error","error":{"type":"api_error","message":"x"}}`,
		))
		return
	}
	content := []map[string]string{}
	if r.text != "" {
		content = append(content, map[string]string{
			"type": "text", "text": r.text,
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "test-model",
		"content":     content,
		"stop_reason": "end_turn",
		"usage": map[string]int{
			"input_tokens":  1,
			"output_tokens": 1,
		},
	})
}

func newClient(t *testing.T, h http.Handler) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return llm.New("test-model", 256,
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
}

var candidates = []collab.Candidate{
	{Identifier: "L01", Description: "Wound care", Score: 0.8},
	{Identifier: "2ad", Description: "Consultation", Score: 0.4},
}

func TestComplete(t *testing.T) {
	c := newClient(t, &reply{text: "  hello  "})

	res, err := c.Complete(context.Background(), "test", "sys", "hi")
	assert.NoError(t, err)
	assert.Equal(t, "hello", res)
}

func TestCompleteNoText(t *testing.T) {
	c := newClient(t, &reply{})

	_, err := c.Complete(context.Background(), "test", "sys", "hi")
	assert.ErrorIs(t, err, llm.ErrNoText)
}

func TestCompleteUnavailable(t *testing.T) {
	c := newClient(t, &reply{status: http.StatusInternalServerError})

	_, err := c.Complete(context.Background(), "test", "sys", "hi")
	assert.ErrorIs(t, err, collab.ErrUnavailable)
}

func TestPlan(t *testing.T) {
	h := &reply{
		text:   "How long is the wound?",
		prompt: make(chan string, 1),
	}
	p := llm.NewPlanner(newClient(t, h))

	items := []api.PredictionItem{
		{
			Identifier:    "L01",
			Status:        api.PredictionFailing,
			MissingFields: []api.FieldRequest{
				{FieldName: "wound_length"},
			},
		},
	}
	q, err := p.Plan(context.Background(), "cut on arm", items)
	require.NoError(t, err)
	assert.Equal(t, "How long is the wound?", q)

	prompt := <-h.prompt
	assert.Contains(t, prompt, "cut on arm")
	assert.Contains(t, prompt, "- L01: wound_length")
}

func TestRerank(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
		err   error
	}{
		{name: "exact", reply: "L01", want: "L01"},
		{name: "punctuated", reply: "2AD. It fits best", want: "2ad"},
		{name: "unknown", reply: "ZZ9", err: llm.ErrUnknownChoice},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := llm.NewReranker(newClient(t, &reply{text: tc.reply}))
			got, err := r.Rerank(context.Background(), "note", candidates)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Identifier)
		})
	}

	r := llm.NewReranker(newClient(t, &reply{text: "L01"}))
	_, err := r.Rerank(context.Background(), "note", nil)
	assert.ErrorIs(t, err, collab.ErrNoCandidates)
}
