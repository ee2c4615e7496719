// Command media-render renders timeline profiles into media files.
//
// Usage:
//
//	media-render render <profile.json> [output]
//	media-render probe <media>
//	media-render history [limit]
//	media-render version
//
// render evaluates the profile frame by frame, composites and mixes the
// active layers and encodes the result. Relative layer sources are resolved
// against the profile's directory. The output defaults to RENDER_OUTPUT or,
// when unset, to <profile id>.<format> next to the profile. SIGINT and
// SIGTERM stop the render early; the encoder is drained and the container
// finalized before exit.
//
// Exit codes: 0 on success, 1 on error, 2 on usage errors and 130 when the
// render was interrupted.
//
// All settings come from the environment; see package startup.
package main
