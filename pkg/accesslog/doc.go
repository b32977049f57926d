// Package accesslog stores one record per completed request. Records are
// written asynchronously through a buffered Recorder so that storage
// latency never blocks the request path; the SQLite backend persists them
// for later inspection and the memory backend serves tests and local runs.
package accesslog
