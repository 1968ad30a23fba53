package observability

const (
	AttrAgentName      = "agent.name"
	AttrToolName       = "tool.name"
	AttrToolCallID     = "tool.call_id"
	AttrLLMModel       = "llm.model"
	AttrLLMTokensIn    = "llm.tokens.input"
	AttrLLMTokensOut   = "llm.tokens.output"
	AttrIteration      = "agent.iteration"
	AttrTargetURL      = "target.url"
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrErrorType      = "error.type"

	SpanDiscovery     = "scout.discovery"
	SpanAgentRun      = "agent.run"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName  = "scout"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
	DefaultOTLPEndpoint = "localhost:4317"

	// TracerName is the instrumentation scope of scout's own spans.
	TracerName = "github.com/kadirpekel/scout"
)
