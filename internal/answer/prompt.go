// Package answer turns a question and retrieved snippets into a language model answer.
package answer

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/codeindex/internal/models"
)

const promptPreamble = `You are a helpful programming assistant. Answer the question and explain any edge cases.
If the question is general knowledge or unrelated to the provided code snippets, answer directly from general knowledge and do not summarize the snippets.
Be concise: for general-knowledge questions give a short direct answer (one or two sentences).
For code-specific questions, give the best, concise answer and include small example snippets only if they clarify the solution. Avoid long-winded explanations.
Use the provided code snippets only when necessary to answer the question; if you reference a snippet, cite its file path.

`

// fenceLanguages maps file extensions to code fence languages. Anything else is "text".
var fenceLanguages = map[string]string{
	".java": "java",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".go":   "go",
	".rb":   "ruby",
	".php":  "php",
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",
	".json": "json",
	".xml":  "xml",
	".md":   "markdown",
}

// FenceLanguage returns the code fence language for path.
func FenceLanguage(path string) string {
	if lang, ok := fenceLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// BuildPrompt renders the answering prompt: instructions, the question, then
// every snippet as a fenced block headed by its path.
func BuildPrompt(question string, snippets []*models.CodeSnippet) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	for _, s := range snippets {
		if s == nil {
			continue
		}
		b.WriteString("File: ")
		b.WriteString(s.Path)
		b.WriteString("\n```")
		b.WriteString(FenceLanguage(s.Path))
		b.WriteString("\n")
		b.WriteString(s.Content)
		b.WriteString("\n```\n\n")
	}
	return strings.TrimSpace(b.String())
}
