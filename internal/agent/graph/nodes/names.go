package nodes

// Retrieval graph nodes.
const (
	NodeQueryConverter     = "QueryConverter"
	NodeRetrieverChatModel = "RetrieverChatModel"
	NodeToolExecutor       = "ToolExecutor"
	NodeQueryCollector     = "QueryCollector"
)

// Presentation graph nodes.
const (
	NodePresentationAssembler = "PresentationAssembler"
	NodePresenterChatModel    = "PresenterChatModel"
	NodePresentationParser    = "PresentationParser"
)
