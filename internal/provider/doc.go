// Package provider provides the LLM provider abstraction layer for Loupe.
//
// This package implements a unified interface for different Large Language Model
// providers using the Eino framework. It supports Anthropic Claude, OpenAI GPT,
// and Volcengine ARK models.
//
// # Core Components
//
//   - Provider: Core interface that all LLM providers must implement
//   - Registry: Manages and coordinates multiple providers
//   - Adapter: Typed completion entry point used by the session engine,
//     with model-pool fallback and exponential-backoff retries
//   - ScriptedAdapter: Deterministic Adapter for tests
//
// # Model Pools
//
// Callers address models as "provider/model" strings, e.g.
// "anthropic/claude-sonnet-4-20250514". The Adapter takes an ordered pool
// of model references: each entry is retried on transient failure, and the
// adapter falls through to the next entry when a model is exhausted.
//
// # Typed Completions
//
// InvokeTyped expects the model to reply with a JSON document, strips a
// surrounding markdown code fence when present, and unmarshals the result
// into the caller's struct. The session engine uses this to parse agent
// turns into structured responses.
package provider
