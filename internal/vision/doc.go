// Package vision wraps the tray camera and the fiducial marker detector.
//
// The camera is an external script that writes a JPEG next to the requested
// base path. Marker detection and the OpenCV circle search are compiled in
// with the opencv build tag; default builds report the marker detector as
// unavailable and fall back to the pure-Go circle search in package cover.
package vision
