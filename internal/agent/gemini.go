package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	// maxToolRounds bounds the search/answer loop so a misbehaving model
	// cannot spin on tool calls forever.
	maxToolRounds = 4

	searchToolName = "web_search"
)

// GeminiAgent answers monument questions with Gemini, consulting the
// web-search capability through function calling before answering.
type GeminiAgent struct {
	client *genai.Client
	model  string
	search Searcher
	logger *slog.Logger
}

// NewGeminiAgent creates the knowledge agent. search may be nil, in which
// case the model runs without the web-search tool.
func NewGeminiAgent(ctx context.Context, apiKey, model string, search Searcher, logger *slog.Logger) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger.Info("Knowledge agent initialized", "model", model)

	return &GeminiAgent{
		client: client,
		model:  model,
		search: search,
		logger: logger,
	}, nil
}

// Chat streams the agent's answer for one turn. Text fragments are yielded
// as they arrive from the model; function calls are executed between rounds
// and their results fed back until the model produces a plain answer.
func (a *GeminiAgent) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Reply, error] {
	return func(yield func(*Reply, error) bool) {
		contents := buildContents(req)
		config := a.generateConfig(req.VerificationInProgress)

		var pendingTools []string
		for round := 0; round <= maxToolRounds; round++ {
			var calls []*genai.FunctionCall

			for resp, err := range a.client.Models.GenerateContentStream(ctx, a.model, contents, config) {
				if err != nil {
					yield(nil, fmt.Errorf("gemini stream: %w", err))
					return
				}
				for _, cand := range resp.Candidates {
					if cand.Content == nil {
						continue
					}
					for _, part := range cand.Content.Parts {
						if part.Text != "" {
							reply := &Reply{Text: part.Text, ToolsUsed: pendingTools}
							pendingTools = nil
							if !yield(reply, nil) {
								return
							}
						}
						if part.FunctionCall != nil {
							calls = append(calls, part.FunctionCall)
						}
					}
				}
			}

			if len(calls) == 0 {
				return
			}

			callParts := make([]*genai.Part, 0, len(calls))
			resultParts := make([]*genai.Part, 0, len(calls))
			for _, call := range calls {
				callParts = append(callParts, genai.NewPartFromFunctionCall(call.Name, call.Args))
				resultParts = append(resultParts, a.executeCall(ctx, call))
				pendingTools = append(pendingTools, call.Name)
			}
			contents = append(contents,
				genai.NewContentFromParts(callParts, genai.RoleModel),
				genai.NewContentFromParts(resultParts, genai.RoleUser),
			)
		}

		yield(nil, errors.New("gemini tool loop exceeded maximum rounds"))
	}
}

// executeCall runs one function call and wraps the result (or the error, so
// the model can recover conversationally) as a function-response part.
func (a *GeminiAgent) executeCall(ctx context.Context, call *genai.FunctionCall) *genai.Part {
	if call.Name != searchToolName || a.search == nil {
		return genai.NewPartFromFunctionResponse(call.Name, map[string]any{
			"error": "unknown tool",
		})
	}

	query, _ := call.Args["query"].(string)
	a.logger.Info("Knowledge agent searching", "query", query)

	results, err := a.search.Search(ctx, query)
	if err != nil {
		a.logger.Warn("Web search failed", "query", query, "error", err)
		return genai.NewPartFromFunctionResponse(call.Name, map[string]any{
			"error": err.Error(),
		})
	}

	return genai.NewPartFromFunctionResponse(call.Name, map[string]any{
		"results": results,
	})
}

func (a *GeminiAgent) generateConfig(verificationInProgress bool) *genai.GenerateContentConfig {
	prompt := monumentsPrompt
	if verificationInProgress {
		prompt += verificationInProgressNote
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt, genai.RoleUser),
	}
	if a.search != nil {
		config.Tools = []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        searchToolName,
				Description: "Search the public web for historical monuments near a place, their history, and how far they are from the place.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "The search query, built from the user's place or monument of interest.",
						},
					},
					Required: []string{"query"},
				},
			}},
		}}
	}
	return config
}

func buildContents(req ChatRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

// Close implements KnowledgeAgent. The genai client is HTTP-backed and
// holds no connection state to release.
func (a *GeminiAgent) Close() error { return nil }
