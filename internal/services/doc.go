// Package services defines the shared error taxonomy for the external
// generation backends and hosts one subpackage per collaborator: storyllm
// (llama-server), comfyui (image rendering), supertonic (narration), and
// whisper (voice-input transcription).
package services
