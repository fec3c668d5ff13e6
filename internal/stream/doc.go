// Package stream provides the streaming session that initializes the remote
// Audio2Face player and forwards a WAV file to it chunk by chunk, plus a
// manager that tracks the sessions currently in flight.
package stream
