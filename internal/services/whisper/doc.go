// Package whisper transcribes short voice clips through a Whisper sidecar
// over HTTP. Used for spoken form-field input, not for run narration.
package whisper
