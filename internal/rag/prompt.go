// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

import "strings"

const promptTemplate = `Based on the following context, answer the question. If the answer is not in the context, say so.

Context:
{context}

Question: {question}`

// BuildPrompt fills the answer template with the question and the chunk
// texts, separated by blank lines.
func BuildPrompt(question string, chunks []string) string {
	r := strings.NewReplacer(
		"{context}", strings.Join(chunks, "\n\n"),
		"{question}", question,
	)
	return r.Replace(promptTemplate)
}
