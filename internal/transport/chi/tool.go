package chi

import "github.com/kailas-cloud/kbsearch/internal/domain/search/request"

// ToolName is the name agents use to invoke vector search.
const ToolName = "VectorSearchTool"

// ToolDescriptor describes an invocable tool to an orchestration layer.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Parameters  map[string]any `json:"parameters"`
}

func vectorSearchDescriptor() ToolDescriptor {
	return ToolDescriptor{
		Name: ToolName,
		Description: "Search the agent's knowledge base for chunks semantically similar to the query. " +
			"Returns a ranked plain-text list with cosine distance scores, lower is closer.",
		Endpoint: "/v1/tools/vector_search",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"query", "agent_id"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language search query.",
					"maxLength":   maxQueryLen,
				},
				"agent_id": map[string]any{
					"type":        "string",
					"description": "Owner of the knowledge base; results never cross agents.",
					"maxLength":   maxAgentIDLen,
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of chunks to return.",
					"default":     request.DefaultLimit,
					"maximum":     maxLimit,
				},
			},
		},
	}
}
