package ocr

// Package ocr defines the contract between the conversion pipeline and an OCR
// engine: recognized lines and words with pixel geometry, the engine lifecycle
// (initialize once per job, recognize many crops, terminate), and the adapter
// that filters known-benign engine errors.
