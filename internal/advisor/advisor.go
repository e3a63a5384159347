// Package advisor implements the RAG advisory surface: answering
// trade-compliance questions grounded in retrieved reference text, live tool
// results, and per-client memory context.
//
// The pipeline is a plain ordered sequence over an immutable state record
// (gather, generate, record) with a single boolean branch: route to
// compliance tools when the question names a tracked product and route.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/knowledge"
	"github.com/tidemark/tidemark/internal/memoryctx"
	"github.com/tidemark/tidemark/internal/tools"
)

// FlowName is the registered name of the advisory flow in genkit.
const FlowName = "tidemark/advise"

const systemPrompt = `You are a trade-compliance advisor. Answer using only the
reference excerpts, live screening results, and client context provided. Cite
which source supports each claim. If the provided material does not answer the
question, say so plainly; never invent regulatory requirements. You provide
research assistance, not legal advice, and must say so when the question asks
for a legal determination.`

// Input is the advisory flow input.
type Input struct {
	ClientID  string `json:"client_id"`
	Question  string `json:"question"`
	ProductID string `json:"product_id,omitempty"`
	RouteID   string `json:"route_id,omitempty"`
}

// Output is the advisory flow output.
type Output struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources,omitempty"`
	UsedTools []string `json:"used_tools,omitempty"`
}

// Flow is the type alias for the advisory genkit flow, exported for the API
// layer's handler registration.
type Flow = core.Flow[Input, Output, struct{}]

// ReferenceSearcher is the similarity-search dependency. *knowledge.Store
// satisfies it.
type ReferenceSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
}

// MemoryService is the optional personalization dependency.
// *memoryctx.Client satisfies it.
type MemoryService interface {
	Search(ctx context.Context, clientID, query string, limit int) ([]memoryctx.Memory, error)
	Add(ctx context.Context, clientID, question, answer string) error
}

// Advisor answers compliance questions over the knowledge store, the tool
// adapters, and the memory service.
//
// Advisor is safe for concurrent use by multiple goroutines.
type Advisor struct {
	genkit    *genkit.Genkit
	modelName string
	search    ReferenceSearcher
	adapters  []*tools.Adapter
	memory    MemoryService // nil disables memory context
	logger    *slog.Logger
}

// New creates an Advisor. memory may be nil.
func New(g *genkit.Genkit, modelName string, search ReferenceSearcher,
	adapters []*tools.Adapter, memory MemoryService, logger *slog.Logger) (*Advisor, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if search == nil {
		return nil, fmt.Errorf("reference searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{
		genkit:    g,
		modelName: modelName,
		search:    search,
		adapters:  adapters,
		memory:    memory,
		logger:    logger,
	}, nil
}

// DefineFlow registers the advisory flow with genkit. Call once at startup.
func (a *Advisor) DefineFlow() *Flow {
	return genkit.DefineFlow(a.genkit, FlowName, a.Advise)
}

// adviceState is the gathered context carried between pipeline steps.
// Each step fills its own fields; nothing is mutated after the gather phase.
type adviceState struct {
	references []knowledge.SearchResult
	memories   []memoryctx.Memory
	toolRuns   []tools.Result
}

// Advise runs the full pipeline for one question.
func (a *Advisor) Advise(ctx context.Context, in Input) (Output, error) {
	if strings.TrimSpace(in.ClientID) == "" {
		return Output{}, fmt.Errorf("%w: client id is required", compliance.ErrValidation)
	}
	if strings.TrimSpace(in.Question) == "" {
		return Output{}, fmt.Errorf("%w: question is required", compliance.ErrValidation)
	}

	// Route to live compliance tools only when the question is anchored to
	// a concrete (product, route) pair; general questions answer from the
	// knowledge store alone.
	useTools := in.ProductID != "" && in.RouteID != ""

	state := a.gather(ctx, in, useTools)

	answer, err := a.generate(ctx, in, state)
	if err != nil {
		return Output{}, fmt.Errorf("generating advice: %w", err)
	}

	// Memory write is best-effort enrichment for future questions.
	if a.memory != nil {
		if err := a.memory.Add(ctx, in.ClientID, in.Question, answer); err != nil {
			a.logger.Warn("memory record failed", "client_id", in.ClientID, "error", err)
		}
	}

	out := Output{Answer: answer}
	for _, r := range state.references {
		out.Sources = append(out.Sources, r.Document.ID)
	}
	for _, res := range state.toolRuns {
		out.UsedTools = append(out.UsedTools, res.Tool)
	}
	return out, nil
}

// gather collects reference text, memory context, and live tool results in
// parallel. Every branch is fail-soft: a failed source contributes nothing.
func (a *Advisor) gather(ctx context.Context, in Input, useTools bool) adviceState {
	var state adviceState

	eg := new(errgroup.Group)

	eg.Go(func() error {
		refs, err := a.search.Search(ctx, in.Question, knowledge.WithTopK(5))
		if err != nil {
			a.logger.Warn("reference retrieval failed",
				"error", fmt.Errorf("%w: %v", compliance.ErrRetrieval, err))
			return nil
		}
		state.references = refs
		return nil
	})

	if a.memory != nil {
		eg.Go(func() error {
			mems, err := a.memory.Search(ctx, in.ClientID, in.Question, 5)
			if err != nil {
				a.logger.Warn("memory context unavailable", "client_id", in.ClientID, "error", err)
				return nil
			}
			state.memories = mems
			return nil
		})
	}

	var toolResults []tools.Result
	if useTools && len(a.adapters) > 0 {
		toolResults = make([]tools.Result, len(a.adapters))
		params := tools.Params{ProductID: in.ProductID, RouteID: in.RouteID}
		for i, adapter := range a.adapters {
			eg.Go(func() error {
				toolResults[i] = adapter.Run(ctx, params)
				return nil
			})
		}
	}

	_ = eg.Wait()
	state.toolRuns = toolResults
	return state
}

// generate renders the gathered context into a prompt and calls the model.
func (a *Advisor) generate(ctx context.Context, in Input, state adviceState) (string, error) {
	var b strings.Builder

	if len(state.references) > 0 {
		b.WriteString("Reference excerpts:\n")
		for _, r := range state.references {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Document.ID, r.Document.Content)
		}
		b.WriteString("\n")
	}
	if len(state.memories) > 0 {
		b.WriteString("Known client context:\n")
		for _, m := range state.memories {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
		b.WriteString("\n")
	}
	for _, res := range state.toolRuns {
		headline, _ := res.Data["headline"].(string)
		if res.IsFallback {
			fmt.Fprintf(&b, "Live %s check unavailable (using fallback): %s\n", res.Tool, headline)
		} else {
			fmt.Fprintf(&b, "Live %s check: %s\n", res.Tool, headline)
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(in.Question)

	resp, err := genkit.Generate(ctx, a.genkit,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(b.String()),
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
