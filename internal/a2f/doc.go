// Package a2f implements the HTTP client for the Audio2Face REST API.
// It pushes base64 encoded PCM buffers to the streaming player and toggles
// exporter flags such as StreamLivelink. Requests are never retried.
package a2f
