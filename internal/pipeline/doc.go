// Package pipeline holds the error taxonomy shared by the stages that turn a generation request into vetted campaign
// content.
//
// The stages live in their own packages and depend only on narrow interfaces:
//
//   - assembler builds a token-budgeted context from the campaign intent, citations and conversation.
//   - generation renders a template, calls the LLM, parses candidate entities and persists drafts.
//   - trust classifies how well a draft is supported by its citations.
//   - acceptance moves drafts through their lifecycle and writes the audit trail.
//
// Errors from every stage are one of ContextError, GenerationError or PipelineError. Each carries a Kind that
// errors.Is matches against the exported sentinels, for example
//
//	if errors.Is(err, pipeline.ErrDraftLocked) { ... }
package pipeline
