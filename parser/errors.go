package parser

import "errors"

var (
	// ErrFormat reports unrecoverable file structure: no header, circular
	// xref chains, malformed records, or no trailer found even after a
	// rebuild scan.
	ErrFormat = errors.New("parser: malformed PDF")

	// ErrPassword reports a well-formed encryption dictionary whose
	// authentication failed.
	ErrPassword = errors.New("parser: password required or incorrect")

	// ErrHandler reports an unknown encryption filter or a crypto handler
	// that refused to initialize.
	ErrHandler = errors.New("parser: unsupported security handler")
)
