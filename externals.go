package crust

import "errors"

// errNotImplemented is what the script.img archive stub returns; the
// externals table iterator yields no names instead of an error. The
// externals table's on-wire shape is undocumented in the source this
// system was distilled from; the interface is specified so callers can
// treat EXTERNALS as absent without special-casing it, but the body is
// intentionally left blank, exactly as original_source/src/loader.rs's
// Externals and ImgArchive types do with unimplemented!().
var errNotImplemented = errors.New("crust: not implemented")

// ExternalsIterator walks an EXTERNALS table and yields external script
// names. Its on-wire format is unspecified; Collect always returns an
// empty list so callers fall back to treating EXTERNALS as absent.
type ExternalsIterator struct {
	table []byte
}

// NewExternalsIterator returns an iterator over table, the raw bytes of
// the EXTERNALS segment.
func NewExternalsIterator(table []byte) *ExternalsIterator {
	return &ExternalsIterator{table: table}
}

// Next returns the next external script name, or ok=false when exhausted.
// Always returns ok=false: the table format is unimplemented.
func (e *ExternalsIterator) Next() (string, bool) {
	return "", false
}

// Collect drains the iterator into a slice. Always empty (see Next).
func (e *ExternalsIterator) Collect() []string {
	var names []string
	for {
		name, ok := e.Next()
		if !ok {
			break
		}
		names = append(names, name)
	}
	return names
}

// ImgArchive is a companion script.img archive that external scripts are
// looked up in by name. Its container format is out of scope for this
// disassembler; the interface is specified, the body is left blank.
type ImgArchive struct {
	path string
}

// NewImgArchive returns an archive handle for path. No I/O happens until
// Extract is called.
func NewImgArchive(path string) *ImgArchive {
	return &ImgArchive{path: path}
}

// Extract returns the byte slice for the named script within the
// archive. Always fails with errNotImplemented.
func (a *ImgArchive) Extract(name string) ([]byte, error) {
	return nil, errNotImplemented
}
