// Package codec executes a single conversion hop by shelling out to the tool
// the catalog recommends for it.
//
// Backends implement one method each (ffmpeg, drapto, calibre, kepubify,
// pandoc, LibreOffice, ImageMagick, poppler). The Router dispatches a Request
// on its Method, prepares the work directory, and verifies that the backend
// left a non-empty output behind. Tool failures are tagged with
// services.ErrExternalTool so the job manager records them as execution
// errors.
package codec
