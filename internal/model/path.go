package model

// Path represents a file system path.
type Path string

// SourceLocation points at a file (and optionally a line) in the workspace.
type SourceLocation struct {
	Path Path
	Line int
}
