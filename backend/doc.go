// Package backend adapts generation APIs to core.Generator.
//
// Anthropic covers both the direct Anthropic API and Amazon Bedrock through
// the anthropic-sdk-go bedrock option. OpenAI covers OpenAI-compatible chat
// completion endpoints. Every call is a single attempt.
package backend
