package models

const (
	// CharsPerToken approximates the token/character ratio (a token is 3-6 chars).
	CharsPerToken    = 4
	DefaultMaxTokens = 500
	DefaultTopK      = 5
	ContextSeparator = "\n--------------\n"
	ContextVariable  = "{context}"
)

var (
	SystemPromptTemplate = `
You are a kind and humble chatbot who sticks to facts received from the
following context:
Context: {context}
`
)
