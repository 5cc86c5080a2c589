// Package ffmpeg runs the external media tools (ffmpeg and ffprobe) on behalf
// of the prober, extractor, normalizer, and merger.
//
// An invocation is bounded by a timeout but deliberately detached from the
// caller's cancellation: once started, a tool call runs to completion so it
// never leaves a half-written file behind, and a cancelled caller has the
// result discarded and receives its context error instead.
package ffmpeg
