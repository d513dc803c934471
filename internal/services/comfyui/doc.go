// Package comfyui renders page images through a ComfyUI instance. A fixed
// workflow template is patched per page with the panel prompt and the run's
// shared seed, queued over HTTP, and polled to completion; the daemon also
// frees GPU memory between runs through the same client.
package comfyui
