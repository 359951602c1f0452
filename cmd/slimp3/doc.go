// Command slimp3 is a software SLIMP3 player. It announces itself to a
// SLIMP3 server, plays the MPEG stream it receives through an external
// decoder and forwards remote control button presses read from stdin.
package main
