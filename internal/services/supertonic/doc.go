// Package supertonic synthesizes page narration through a Supertonic TTS
// sidecar over HTTP. One WAV artifact per page, written alongside the run's
// image artifacts.
package supertonic
