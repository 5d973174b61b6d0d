package model

// EstimateTokens approximates the token count of text for budget
// arithmetic (rough proxy: 1 token ≈ 4 chars). Both the context window
// and the prompt assembler size against this estimate, so the budget
// law holds as long as both sides use the same measure.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
