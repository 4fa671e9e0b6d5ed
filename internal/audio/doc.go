// Package audio plays streamed audio segments. Player decodes MP3 with
// go-mp3 and writes PCM to the output device through oto/v3; NullPlayer
// consumes segments without producing sound.
package audio
