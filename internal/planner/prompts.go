package planner

// Category is the task class the fast classifier assigns. Each category
// maps to a specialized prompt template with a restricted tool set and a
// step cap; mixed tasks go straight to the generic ladder stage.
type Category string

const (
	CategoryWriting      Category = "writing"
	CategoryCode         Category = "code"
	CategoryResearch     Category = "research"
	CategoryData         Category = "data"
	CategoryPresentation Category = "presentation"
	CategoryMixed        Category = "mixed"
)

const classifierSystem = `You classify tasks for an autonomous agent.
Categories:
- "writing": texts, articles, letters, posts, documents
- "code": calculations, algorithms, scripts, programming
- "research": news, facts, current information from the internet
- "data": data analysis, statistics, reports from datasets
- "presentation": slide decks, presentations
- "mixed": anything combining several of the above

Respond with ONLY a JSON object:
{"category": "code", "tools": ["code_runner"]}

The "tools" list names the tools most likely needed, in order of importance.`

// template is a category-specific planning prompt. Tools is the allowed
// subset advertised to the model; MaxSteps caps the plan length for this
// category.
type template struct {
	Tools    []string
	MaxSteps int
	Guidance string
}

var templates = map[Category]template{
	CategoryWriting: {
		Tools:    []string{"text_writer", "files"},
		MaxSteps: 2,
		Guidance: "Prefer a single text_writer step. Only add a files step when the task explicitly needs extra file handling.",
	},
	CategoryCode: {
		Tools:    []string{"code_runner", "files"},
		MaxSteps: 2,
		Guidance: "Prefer a single code_runner step with complete, runnable code that prints its result.",
	},
	CategoryResearch: {
		Tools:    []string{"web_search", "web_fetch", "files"},
		MaxSteps: 3,
		Guidance: "Start with web_search. Use web_fetch only when a specific URL must be read in full.",
	},
	CategoryData: {
		Tools:    []string{"code_runner", "files"},
		MaxSteps: 3,
		Guidance: "Use code_runner with pandas/numpy. Print clear formatted results with statistics.",
	},
	CategoryPresentation: {
		Tools:    []string{"slides", "text_writer", "files"},
		MaxSteps: 3,
		Guidance: "Prefer a single slides step. Brief slide content is fine, it is expanded automatically.",
	},
}

const planFormat = `Respond with ONLY a JSON array of steps:
[
  {"id": 1, "tool": "tool_name", "description": "what this step does", "input": {"key": "value"}, "depends_on": []}
]

Rules:
- Use the MINIMUM number of steps.
- Step ids start at 1 and increase; depends_on may only reference earlier ids.
- A step can use an earlier step's result with the placeholder {{step_N_output}} inside any input value.
- Every "input" must contain the required keys of its tool.`

const genericSystem = `You are a planner for an autonomous agent. Decompose the task into an ordered plan of tool invocations.

Available tools:
%s

%s`

const specializedSystem = `You are a planner for an autonomous agent. This task is a %s task.

Allowed tools (use no others):
%s

%s
Plan at most %d step(s).

%s`

const reasoningSystem = `You are a planner for an autonomous agent working on a complex task. Think it through before answering.

Available tools:
%s

First reason briefly about the decomposition: which results feed which steps, what can go wrong. Then output the final plan.

%s`

const reasoningFollowup = `Now output ONLY the final JSON array of steps, nothing else.`

const memoryContextHeader = "Context from similar past tasks:"
