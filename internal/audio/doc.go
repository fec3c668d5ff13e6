// Package audio reads PCM sample data out of WAV files and slices it into
// fixed-size chunks for streaming. WAV parsing is done by go-audio/wav; this
// package only exposes the format header and the raw bytes of the data chunk.
package audio
