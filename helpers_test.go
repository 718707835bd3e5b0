package crust

// newTestDict builds an OpcodeDictionary directly from CommandDefinitions,
// bypassing the JSON loader - the same whitebox shortcut the loader's own
// getSegments stub dictionary uses (loader.go).
func newTestDict(defs ...*CommandDefinition) *OpcodeDictionary {
	d := NewOpcodeDictionary()
	for _, c := range defs {
		d.add(c)
	}
	return d
}
