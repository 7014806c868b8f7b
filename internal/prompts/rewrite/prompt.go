// Package rewrite holds the OCR cleanup prompt of the formatting pipeline.
package rewrite

import (
	_ "embed"

	"github.com/jackzampolin/lexshelf/internal/prompts"
)

//go:embed rewrite.tmpl
var rewritePrompt string

// PromptKey is the key for this prompt.
const PromptKey = "format_rewrite"

// System is the system instruction for rewrite calls.
const System = "You are a meticulous copy editor restoring OCR text. You never drop content."

// Data fills rewrite.tmpl.
type Data struct {
	Number  int
	Title   string
	Content string
}

// RegisterPrompts registers the rewrite prompt with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         PromptKey,
		Text:        rewritePrompt,
		Description: "OCR cleanup of one chapter without shortening it",
	})
}
