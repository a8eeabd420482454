package oracle

// Fixed answers.
const (
	// ClarificationRequest asks the caller to authenticate first.
	ClarificationRequest = "Please provide me the secret key to answer to your question?"
	// EmptyCompletionApology replaces an empty model completion.
	EmptyCompletionApology = "I'm sorry, I don't know the answer to that question."
	// GenericApology is returned when answering fails unexpectedly.
	GenericApology = "Sorry, something went wrong while answering your question. Please try again later."
	// CompanyNotFound is returned when the directory cannot resolve the caller.
	CompanyNotFound = "Sorry, I could not find the company you are looking for."
)

// AnswerKind is how an answer was produced.
type AnswerKind string

const (
	// KindClarification asks the caller for a secret key.
	KindClarification AnswerKind = "clarification"
	// KindNoData is the chat model's message for a query that matched nothing.
	KindNoData AnswerKind = "no_data"
	// KindExplanation describes an executed query's result.
	KindExplanation AnswerKind = "explanation"
	// KindReply is model text that was not a query, returned as it is.
	KindReply AnswerKind = "reply"
	// KindApology is a fixed apology for an empty completion or an internal fault.
	KindApology AnswerKind = "apology"
)

// Answer is the natural language result of Ask.
type Answer struct {
	Text string     `json:"answer"`
	Kind AnswerKind `json:"kind"`
	// SQL is the tenant scoped statement that produced the answer, with the
	// tenant value inlined. Empty unless a query ran.
	SQL       string `json:"sql,omitempty"`
	RequestID string `json:"request_id"`
}
