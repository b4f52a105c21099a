// Package extract decodes uploaded video files into JPEG frames with
// GStreamer.
//
// Pipeline structure:
//
//	filesrc → decodebin ⇢ videoconvert → videoscale → videorate →
//	capsfilter → jpegenc → appsink
//
// decodebin exposes its video pad dynamically; it is linked to videoconvert
// from the pad-added callback. Samples are copied out of the appsink until
// end of stream, the frame cap, the timeout or cancellation, whichever comes
// first. Frames are returned in presentation order.
package extract
