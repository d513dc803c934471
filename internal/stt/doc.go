// Package stt fills story form fields from voice clips: transcription is
// delegated to the Whisper sidecar, then the text is normalized per field.
package stt
