package document

import "github.com/zoobzio/capitan"

// Document lifecycle signals.
var (
	// DocumentLoaded is emitted when new contents are decoded and merged.
	DocumentLoaded = capitan.NewSignal(
		"tether.document.loaded",
		"Document loaded",
	)

	// DocumentLoadFailed is emitted when contents cannot be read or decoded.
	// The document keeps its previous contents.
	DocumentLoadFailed = capitan.NewSignal(
		"tether.document.load.failed",
		"Document load failed",
	)

	// DocumentSaved is emitted when a document is written back to its file
	// or source.
	DocumentSaved = capitan.NewSignal(
		"tether.document.saved",
		"Document saved",
	)

	// DocumentSaveFailed is emitted when a document cannot be written.
	DocumentSaveFailed = capitan.NewSignal(
		"tether.document.save.failed",
		"Document save failed",
	)

	// DocumentWatchStarted is emitted when a file or source watch begins.
	DocumentWatchStarted = capitan.NewSignal(
		"tether.document.watch.started",
		"Document watch started",
	)

	// DocumentWatchStopped is emitted when a file or source watch ends.
	DocumentWatchStopped = capitan.NewSignal(
		"tether.document.watch.stopped",
		"Document watch stopped",
	)
)

// Field keys for document events.
var (
	// KeyPath is the file path or the source name.
	KeyPath = capitan.NewStringKey("path")

	// KeyContentType is the codec MIME type.
	KeyContentType = capitan.NewStringKey("content_type")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")
)
