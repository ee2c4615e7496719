// Package mediatypes maps file extensions to output containers and source
// kinds.
//
// It has no dependencies beyond the standard library so that configuration
// and command packages can import it without cycles.
//
// # Containers
//
// The container table links muxer names to extensions:
//
//	c, ok := mediatypes.ForPath("out.mkv") // c.Format == "matroska"
//	ext := mediatypes.Extension("matroska") // ".mkv"
//
// Audio-only containers are flagged so callers can drop the video stream.
//
// # Sources
//
// GetFileType classifies a layer source as image, video, audio or other:
//
//	switch mediatypes.GetFileType(layer.Source) {
//	case mediatypes.FileTypeOther:
//	    // probably not decodable
//	}
package mediatypes
