// Package decoder supervises the external MPEG decoder program.
//
// The decoder reads the audio stream on its standard input. A Process owns
// the running program, drains the ring buffer into it in bounded chunks and
// exposes a readiness channel so the protocol loop can multiplex decoder
// input against network traffic. Launching the program sits behind the
// Launcher interface; ExecLauncher runs a shell command.
package decoder
