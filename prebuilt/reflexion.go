package prebuilt

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/stategraph/graph"
	"github.com/smallnest/stategraph/store"
)

// Node names of the reflexion graph.
const (
	NodeDraft        = "draft"
	NodeExecuteTools = "execute_tools"
	NodeRevisor      = "revisor"
)

// MessagesKey is the state key holding the conversation.
const MessagesKey = "messages"

// DefaultMaxIterations is the number of research rounds when ReflexionConfig
// leaves MaxIterations unset.
const DefaultMaxIterations = 2

// Role identifies the author of a Message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

// Reflection is the critique attached to an answer.
type Reflection struct {
	Missing     string `json:"missing"`
	Superfluous string `json:"superfluous"`
}

// Answer is a drafted or revised answer together with its self-critique and the
// searches that should improve it.
type Answer struct {
	Answer        string     `json:"answer"`
	Reflection    Reflection `json:"reflection"`
	SearchQueries []string   `json:"search_queries,omitempty"`
	References    []string   `json:"references,omitempty"`
}

// Message is one entry of the conversation. AI messages carry an Answer, tool
// messages carry the search results keyed by query.
type Message struct {
	Role    Role                `json:"role"`
	Content string              `json:"content,omitempty"`
	Answer  *Answer             `json:"answer,omitempty"`
	Results map[string][]string `json:"results,omitempty"`
}

func init() {
	if err := store.RegisterType[Message]("prebuilt.Message"); err != nil {
		panic(err)
	}
}

// Drafter writes the first answer to the question in messages.
type Drafter interface {
	Draft(ctx context.Context, messages []Message) (Answer, error)
}

// Researcher runs search queries and returns the results of each.
type Researcher interface {
	Search(ctx context.Context, queries []string) (map[string][]string, error)
}

// Reviser rewrites the latest answer using the search results in messages.
type Reviser interface {
	Revise(ctx context.Context, messages []Message) (Answer, error)
}

// DrafterFunc adapts a function to Drafter.
type DrafterFunc func(ctx context.Context, messages []Message) (Answer, error)

func (f DrafterFunc) Draft(ctx context.Context, messages []Message) (Answer, error) {
	return f(ctx, messages)
}

// ResearcherFunc adapts a function to Researcher.
type ResearcherFunc func(ctx context.Context, queries []string) (map[string][]string, error)

func (f ResearcherFunc) Search(ctx context.Context, queries []string) (map[string][]string, error) {
	return f(ctx, queries)
}

// ReviserFunc adapts a function to Reviser.
type ReviserFunc func(ctx context.Context, messages []Message) (Answer, error)

func (f ReviserFunc) Revise(ctx context.Context, messages []Message) (Answer, error) {
	return f(ctx, messages)
}

// ReflexionConfig configures NewReflexionGraph.
type ReflexionConfig struct {
	Drafter    Drafter
	Researcher Researcher
	Reviser    Reviser

	// MaxIterations is the number of research rounds before the revisor's answer
	// is final.
	MaxIterations int

	// Options are passed to Compile.
	Options []graph.Option
}

// ReflexionSchema declares the state of the reflexion graph.
func ReflexionSchema() *graph.Schema {
	return graph.NewSchema().
		Declare(MessagesKey, graph.KindList, graph.Appending(), graph.WithDecoder(graph.DecodeAs[Message]()))
}

// NewReflexionGraph builds a graph that drafts an answer, researches the
// drafter's queries and revises the answer until MaxIterations research rounds
// have run:
//
//	START -> draft -> execute_tools -> revisor -> (execute_tools | END)
func NewReflexionGraph(cfg ReflexionConfig) (*graph.Graph, error) {
	var errs []error
	if cfg.Drafter == nil {
		errs = append(errs, errors.New("drafter is required"))
	}
	if cfg.Researcher == nil {
		errs = append(errs, errors.New("researcher is required"))
	}
	if cfg.Reviser == nil {
		errs = append(errs, errors.New("reviser is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("reflexion graph: %w", errors.Join(errs...))
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	g := graph.NewStateGraph(ReflexionSchema())

	g.AddNode(NodeDraft, func(ctx context.Context, s graph.State) (graph.Result, error) {
		answer, err := cfg.Drafter.Draft(ctx, Messages(s))
		if err != nil {
			return graph.Result{}, fmt.Errorf("draft: %w", err)
		}
		return appendMessage(Message{Role: RoleAI, Answer: &answer}), nil
	}, graph.WithDescription("Draft an answer with a self-critique and search queries"))

	g.AddNode(NodeExecuteTools, func(ctx context.Context, s graph.State) (graph.Result, error) {
		var queries []string
		if last, ok := lastAnswer(Messages(s)); ok {
			queries = last.SearchQueries
		}
		results, err := cfg.Researcher.Search(ctx, queries)
		if err != nil {
			return graph.Result{}, fmt.Errorf("search: %w", err)
		}
		return appendMessage(Message{Role: RoleTool, Results: results}), nil
	}, graph.WithDescription("Run the search queries of the latest answer"))

	g.AddNode(NodeRevisor, func(ctx context.Context, s graph.State) (graph.Result, error) {
		answer, err := cfg.Reviser.Revise(ctx, Messages(s))
		if err != nil {
			return graph.Result{}, fmt.Errorf("revise: %w", err)
		}
		return appendMessage(Message{Role: RoleAI, Answer: &answer}), nil
	}, graph.WithDescription("Revise the answer using the search results"))

	g.AddEdge(graph.START, NodeDraft)
	g.AddEdge(NodeDraft, NodeExecuteTools)
	g.AddEdge(NodeExecuteTools, NodeRevisor)
	g.AddConditionalEdge(NodeRevisor, func(_ context.Context, s graph.State) string {
		if ToolMessages(s) >= maxIterations {
			return graph.END
		}
		return NodeExecuteTools
	}, NodeExecuteTools, graph.END)

	// caps research rounds independently of the router
	opts := append([]graph.Option{
		graph.WithCycleLimit("research rounds", ToolMessages, maxIterations+1),
	}, cfg.Options...)
	return g.Compile(opts...)
}

// NewReflexionInput returns the input state for a run answering question.
func NewReflexionInput(question string) graph.State {
	return graph.State{
		MessagesKey: []any{Message{Role: RoleHuman, Content: question}},
	}
}

// Messages returns the conversation stored in s.
func Messages(s graph.State) []Message {
	return graph.ListOf[Message](s, MessagesKey)
}

// ToolMessages counts the research rounds recorded in s.
func ToolMessages(s graph.State) int {
	n := 0
	for _, m := range Messages(s) {
		if m.Role == RoleTool {
			n++
		}
	}
	return n
}

// FinalAnswer returns the latest non-empty answer in s.
func FinalAnswer(s graph.State) (Answer, bool) {
	return lastAnswer(Messages(s))
}

func lastAnswer(messages []Message) (Answer, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == RoleAI && m.Answer != nil && m.Answer.Answer != "" {
			return *m.Answer, true
		}
	}
	return Answer{}, false
}

func appendMessage(m Message) graph.Result {
	return graph.Continue(graph.State{MessagesKey: []any{m}})
}
