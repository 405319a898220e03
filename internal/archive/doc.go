// Package archive exports the gallery as a single backup file.
//
// # Format
//
// A tar stream compressed with zstd:
//
//	manifest.json           profile name, export time, one entry per image
//	images/<id>.<ext>       raw image bytes, extension from the MIME type
//
// Images appear newest first, in gallery order.
//
// # Writing
//
// Export streams to any io.Writer. ExportFile writes to path + ".tmp",
// syncs, and renames over path.
package archive
