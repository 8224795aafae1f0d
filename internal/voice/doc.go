// Package voice implements the spoken persona round trip: transcribe an
// uploaded clip, answer it in character through an Ollama chat model and
// synthesize the reply as WAV audio.
//
// Speech services are reached over their OpenAI-compatible HTTP APIs
// (/v1/audio/transcriptions and /v1/audio/speech), so any local whisper or
// TTS server speaking that dialect can be plugged in.
package voice
