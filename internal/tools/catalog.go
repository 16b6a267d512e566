package tools

//go:generate go run ../../cmd/linters/jsonschema -path .

import (
	"github.com/invopop/jsonschema"
)

// Catalog is the static table of all 15 tool descriptors, source of truth
// for guardrail/cache eligibility reported by loki_describe_tools.
var Catalog = []Descriptor{
	{Name: "loki_list_labels", Group: GroupDiscovery, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_list_label_values", Group: GroupDiscovery, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_list_series", Group: GroupDiscovery, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_query_logs", Group: GroupQuery, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_query_range", Group: GroupQuery, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_instant_query", Group: GroupQuery, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_tail", Group: GroupQuery, CacheEligible: false, GuardrailApplies: true},
	{Name: "loki_query_stats", Group: GroupAnalysis, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_index_stats", Group: GroupAnalysis, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_summarize_logs", Group: GroupAnalysis, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_find_errors", Group: GroupAnalysis, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_top_labels", Group: GroupAnalysis, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_histogram", Group: GroupAnalysis, CacheEligible: true, GuardrailApplies: true},
	{Name: "loki_health", Group: GroupUtility, CacheEligible: false, GuardrailApplies: false},
	{Name: "loki_describe_tools", Group: GroupUtility, CacheEligible: false, GuardrailApplies: false},
}

// Descriptions are short forms of the mcp.WithDescription text registered
// for each tool, kept here (rather than reflected out of the mcp.Tool) so
// loki_describe_tools can be computed without a round-trip through the
// MCP server's internal tool table.
var Descriptions = map[string]string{
	"loki_list_labels":       "List all label names present in Loki within a time range.",
	"loki_list_label_values": "List all distinct values Loki has observed for a given label name within a time range.",
	"loki_list_series":       "List the distinct label-set combinations (series) matching one or more stream selectors within a time range.",
	"loki_query_logs":        "Run a LogQL query over a time range and return matching log lines, shaped according to result size.",
	"loki_query_range":       "Run a LogQL range query with explicit direction control, returning matching log lines shaped by mode.",
	"loki_instant_query":     "Evaluate a LogQL query at a single instant, returning log lines present at that point.",
	"loki_tail":              "Tail a LogQL query for a bounded duration, returning the lines observed.",
	"loki_query_stats":       "Estimate the cost of running a LogQL query over a time range.",
	"loki_index_stats":       "Estimate the cost of a stream selector over a time range.",
	"loki_summarize_logs":    "Run a LogQL query and return only the summary shape.",
	"loki_find_errors":       "Search for likely error lines in a selector's logs over a time range.",
	"loki_top_labels":        "Rank the values of a label by estimated cost over a time range.",
	"loki_histogram":         "Run a LogQL query and return only the time-bucketed line-count histogram.",
	"loki_health":            "Report whether the configured Loki backend is ready.",
	"loki_describe_tools":    "Return the live tool catalog: name, description, argument schema, guardrail/cache eligibility.",
}

// argSchemas maps each tool to a struct whose jsonschema tags describe its
// arguments, reflected via invopop/jsonschema for loki_describe_tools.
var argSchemas = map[string]any{
	"loki_list_labels":       timeRangeArgs{},
	"loki_list_label_values": labelValuesArgs{},
	"loki_list_series":       seriesArgs{},
	"loki_query_logs":        queryArgs{},
	"loki_query_range":       queryRangeArgs{},
	"loki_instant_query":     instantQueryArgs{},
	"loki_tail":              tailArgs{},
	"loki_query_stats":       queryArgsMinimal{},
	"loki_index_stats":       selectorArgs{},
	"loki_summarize_logs":    limitedQueryArgs{},
	"loki_find_errors":       findErrorsArgs{},
	"loki_top_labels":        topLabelsArgs{},
	"loki_histogram":         limitedQueryArgs{},
	"loki_health":            struct{}{},
	"loki_describe_tools":    struct{}{},
}

type timeRangeArgs struct {
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
}

type labelValuesArgs struct {
	Label string `json:"label" jsonschema:"required,description=The label name to enumerate values for."`
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
}

type seriesArgs struct {
	Matchers []string `json:"matchers,omitempty" jsonschema:"description=Stream selectors to match."`
	Start    string   `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End      string   `json:"end,omitempty" jsonschema:"description=End of the time range."`
}

type queryArgs struct {
	Query string `json:"query" jsonschema:"required,description=LogQL query."`
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum log lines to fetch."`
	Mode  string `json:"mode,omitempty" jsonschema:"description=Response shaping mode: raw\\, truncated\\, summary\\, or smart."`
}

type queryRangeArgs struct {
	queryArgs
	Direction string `json:"direction,omitempty" jsonschema:"description=forward or backward."`
}

type instantQueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=LogQL query."`
	At    string `json:"at,omitempty" jsonschema:"description=Instant to evaluate at."`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum log lines to return."`
	Mode  string `json:"mode,omitempty" jsonschema:"description=Response shaping mode."`
}

type tailArgs struct {
	Query           string `json:"query" jsonschema:"required,description=LogQL query to tail."`
	DurationSeconds int    `json:"durationSeconds,omitempty" jsonschema:"description=How long to tail\\, in seconds."`
	MaxLines        int    `json:"maxLines,omitempty" jsonschema:"description=Stop early once this many lines are observed."`
}

type queryArgsMinimal struct {
	Query string `json:"query" jsonschema:"required,description=LogQL query to estimate."`
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
}

type selectorArgs struct {
	Selector string `json:"selector" jsonschema:"required,description=Stream selector."`
	Start    string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End      string `json:"end,omitempty" jsonschema:"description=End of the time range."`
}

type limitedQueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=LogQL query."`
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum log lines to fetch."`
}

type findErrorsArgs struct {
	Selector string `json:"selector" jsonschema:"required,description=Stream selector to search within."`
	Start    string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End      string `json:"end,omitempty" jsonschema:"description=End of the time range."`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum matching lines to fetch."`
}

type topLabelsArgs struct {
	Label string `json:"label" jsonschema:"required,description=Label name to rank values of."`
	Start string `json:"start,omitempty" jsonschema:"description=Start of the time range."`
	End   string `json:"end,omitempty" jsonschema:"description=End of the time range."`
	TopN  int    `json:"topN,omitempty" jsonschema:"description=How many top values to return."`
}

// ToolInfo is one entry of the live catalog loki_describe_tools returns.
type ToolInfo struct {
	Name             string             `json:"name"`
	Group            Group              `json:"group"`
	Description      string             `json:"description"`
	CacheEligible    bool               `json:"cacheEligible"`
	GuardrailApplies bool               `json:"guardrailApplies"`
	ArgumentSchema   *jsonschema.Schema `json:"argumentSchema"`
}

// DescribeCatalog reflects the argument schema for each cataloged tool and
// returns the live catalog listing.
func DescribeCatalog() []ToolInfo {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	infos := make([]ToolInfo, 0, len(Catalog))
	for _, d := range Catalog {
		schema := reflector.Reflect(argSchemas[d.Name])
		infos = append(infos, ToolInfo{
			Name:             d.Name,
			Group:            d.Group,
			Description:      Descriptions[d.Name],
			CacheEligible:    d.CacheEligible,
			GuardrailApplies: d.GuardrailApplies,
			ArgumentSchema:   schema,
		})
	}
	return infos
}
