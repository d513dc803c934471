// Package storyllm generates five-panel storyboards from a llama-server
// completion endpoint. The client handles transport retries; the generator
// owns the semantic retry loop that re-prompts the model when a completion
// fails extraction or validation.
package storyllm
