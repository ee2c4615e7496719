// Package libav implements the codec backend on FFmpeg via go-astiav.
//
// Frame data is copied between FFmpeg and Go memory at every boundary, so
// nothing returned from this package aliases FFmpeg buffers. Hardware surfaces
// are the exception: they wrap device frames and must be freed by the caller.
//
// Building requires the FFmpeg development libraries (libavcodec,
// libavformat, libavutil, libswscale, libswresample) and cgo.
package libav
