package pipeline

// Status is the terminal outcome class of one pipeline run. Every run ends
// in exactly one of these.
type Status string

const (
	// StatusSuccess means a handler produced a reply.
	StatusSuccess Status = "SUCCESS"
	// StatusValidationFailed means the message could not be turned into a
	// routable request: unknown chat, malformed command syntax.
	StatusValidationFailed Status = "VALIDATION_FAILED"
	// StatusPermissionDenied means the request was understood but the
	// sender may not make it here, or in this capacity.
	StatusPermissionDenied Status = "PERMISSION_DENIED"
	// StatusExecutionFailed means the selected handler ran but could not
	// complete: backend failure, denied tool call, tool loop overrun.
	StatusExecutionFailed Status = "EXECUTION_FAILED"
	// StatusTimeout means a step exceeded its time allowance and was
	// cancelled.
	StatusTimeout Status = "TIMEOUT"
)

// Step names, recorded in results and the audit trail.
const (
	StepParse   = "parse"
	StepResolve = "resolve_chat"
	StepPermit  = "permission"
	StepEntity  = "entity"
	StepSelect  = "select_handler"
	StepExecute = "execute"
	StepFormat  = "format"
)

// Result is the outcome of one pipeline run. Reply is the only field whose
// content reaches the chat; everything else feeds logs and the audit trail.
type Result struct {
	// Status is the terminal outcome.
	Status Status
	// Reply is the outbound message text, produced by the formatter.
	Reply string
	// Step names the pipeline step that decided the outcome.
	Step string
	// Detail is the internal failure description. Logged, audited, never
	// sent to chat.
	Detail string
	// Hint explains rejected input in terms of the message text itself
	// (e.g. "unterminated quote"). Only the parse step sets it; unlike
	// Detail it is safe to echo back to the sender.
	Hint string
	// Usage is the corrected-usage example offered alongside Hint when the
	// attempted command is in the catalog.
	Usage string
	// Action is the normalized command name, or "free_form".
	Action string
	// HandlerRole is the role that served (or would have served) the run.
	HandlerRole string
	// ToolCallsMade lists every tool the run dispatched, in order.
	ToolCallsMade []string
	// Grounded reports whether the reply was composed from tool data.
	Grounded bool
	// Suggestions holds the near-miss command names offered when an
	// unrecognized command fell through to the default handler.
	Suggestions []string
	// TokensUsed is the backend token total for the run.
	TokensUsed int
}

// Formatter turns a terminal result into the outbound chat message. The
// implementation lives outside this package; the pipeline only guarantees
// that Format is called exactly once per run, last.
type Formatter interface {
	Format(res Result) string
}
