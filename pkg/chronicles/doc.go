// Package chronicles provides a client for the logger chronicles backup
// service. The service stores data files uploaded by field loggers, keyed by
// logger type code, serial number and the date of the recording, and exposes
// them again through a browsable tree.
//
// The Client maps three operations onto the versioned REST API:
//
//	POST {host}/api/{version}/backup          Backup, BackupAsync
//	GET  {host}/api/{version}/backup/{path}/  Navigate
//	GET  {host}/api/{version}/file/{path}/    Download, DownloadTo
//
// Every call issues exactly one HTTP request. When the service answers, the
// outcome is reported as data on the returned result: StatusCode always holds
// the raw status and Errors holds the decoded error body for failed requests.
// Returned errors are reserved for faults that prevent a response from being
// obtained at all (see ConfigurationError, FileAccessError, TransportError).
package chronicles
