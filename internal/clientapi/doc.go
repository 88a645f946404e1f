// Package clientapi speaks the two caller-facing dialects: OpenAI chat
// completions and Anthropic messages.
//
// Each dialect has a request type that is validated and converted to a
// canonical.Request, a response type rendered from a canonical.Response, and
// an error envelope. Dialect conversion is lossless for text content, roles,
// finish reasons and token usage.
package clientapi
