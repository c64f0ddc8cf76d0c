package vision

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are an expert programming assistant that analyzes screenshots. " +
	"When you see a coding challenge or problem, provide a working solution. " +
	"Always format code in proper markdown blocks. Be concise and focus on practical solutions."

const baseInstruction = "Please view the screen and analyze what you see."

// BuildPrompt wraps the user's question. An empty question asks for the
// default coding-oriented analysis.
func BuildPrompt(question string) string {
	question = strings.TrimSpace(question)
	if question != "" {
		return fmt.Sprintf("%s Please answer the following question in the simplest way possible: %s\n\n"+
			"IMPORTANT: If your answer involves code, please format it in proper markdown code blocks "+
			"with the appropriate language identifier. Provide clear, working code examples when applicable.",
			baseInstruction, question)
	}
	return baseInstruction + " If this is a coding challenge or problem:\n" +
		"1. Briefly explain what the code/problem does\n" +
		"2. Provide a working solution in the same programming language\n" +
		"3. Format all code in proper markdown code blocks\n" +
		"4. Keep explanations concise and focused on the solution\n\n" +
		"If this is not a coding problem, describe what you see including any text, UI elements, or important information."
}
