package crust

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// Segment indices into the header's segment-goto chain that carry a
// special meaning once three or more segments are present.
const (
	missionsSeg  = 2
	externalsSeg = 3
)

// segmentOffset is one entry of the header walk: after is the byte
// position immediately following the segment-goto instruction that
// produced this entry, dest is the absolute offset it jumps to. The
// half-open range [after, dest) is exactly the table data (if any) that
// sits between this header instruction and the next one.
type segmentOffset struct {
	after uint32
	dest  uint32
}

// findSegmentCommand locates the dictionary's is_segment command,
// required to bootstrap the stub dictionary used to walk the header.
func findSegmentCommand(dict *OpcodeDictionary) (*CommandDefinition, error) {
	ops := dict.ByAttr("is_segment")
	if len(ops) == 0 {
		return nil, fmt.Errorf("library has no command with attribute is_segment")
	}
	def, ok := dict.Lookup(ops[0])
	if !ok {
		return nil, fmt.Errorf("library has no command with attribute is_segment")
	}
	return def, nil
}

// getSegments builds a one-entry stub dictionary containing only the
// is_segment command and walks the file from offset 0, following each
// segment-goto's destination, until a non-segment instruction decodes or
// a non-positive destination is seen.
func getSegments(chunk []byte, dict *OpcodeDictionary, dialect Dialect) ([]segmentOffset, error) {
	segCmd, err := findSegmentCommand(dict)
	if err != nil {
		return nil, err
	}
	stub := NewOpcodeDictionary()
	stub.add(segCmd)

	parser := NewParser(chunk, stub, dialect, 0)
	var segments []segmentOffset
	for !parser.Done() {
		inst := parser.Next()
		if inst.IsInvalid() {
			break
		}
		dest, ok := inst.Params[0].ToOffset()
		if !ok || dest <= 0 {
			break
		}
		segments = append(segments, segmentOffset{after: parser.Position(), dest: uint32(dest)})
		parser.SetPosition(uint32(dest))
	}
	return segments, nil
}

// missionsTable is the parsed shape of the missions table: one leading
// tag byte, then main_size, an ignored largest_mission, num_missions, an
// ignored num_exclusive_missions, and num_missions absolute
// mission-start offsets.
type missionsTable struct {
	mainSize uint32
	offsets  []uint32
}

func parseMissionsTable(b []byte) (missionsTable, error) {
	const minHeader = 1 + 4 + 4 + 2 + 2
	if len(b) < minHeader {
		return missionsTable{}, fmt.Errorf("missions table too short: %d bytes", len(b))
	}
	pos := 1 // skip leading tag byte
	mainSize := binary.LittleEndian.Uint32(b[pos:])
	pos += 4
	pos += 4 // largest_mission, ignored
	numMissions := binary.LittleEndian.Uint16(b[pos:])
	pos += 2
	pos += 2 // num_exclusive_missions, ignored

	need := int(numMissions) * 4
	if len(b)-pos < need {
		return missionsTable{}, fmt.Errorf("missions table truncated: need %d offset bytes, have %d", need, len(b)-pos)
	}
	offsets := make([]uint32, numMissions)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(b[pos:])
		pos += 4
	}
	return missionsTable{mainSize: mainSize, offsets: offsets}, nil
}

// Load recovers the file's internal layout and returns its chunks. dict
// drives both the header walk and (via dialect) operand decoding; the
// caller supplies the whole input file as chunk.
func Load(chunk []byte, dict *OpcodeDictionary, dialect Dialect) ([]Script, error) {
	segments, err := getSegments(chunk, dict, dialect)
	if err != nil {
		return nil, err
	}

	switch len(segments) {
	case 0:
		return []Script{{Bytes: chunk, Kind: External, BaseOffset: 0}}, nil
	case 1, 2:
		return nil, fmt.Errorf("No missions segment found")
	case 3, 6:
		// proceed
	default:
		return nil, fmt.Errorf("Invalid header structure")
	}

	ms := segments[missionsSeg]
	if int(ms.after) > len(chunk) || int(ms.dest) > len(chunk) || ms.after > ms.dest {
		return nil, fmt.Errorf("Invalid header structure")
	}
	missions, err := parseMissionsTable(chunk[ms.after:ms.dest])
	if err != nil {
		return nil, err
	}

	mainStart := segments[len(segments)-1].dest
	if int(mainStart) > len(chunk) || int(missions.mainSize) > len(chunk) || mainStart > missions.mainSize {
		return nil, fmt.Errorf("Invalid header structure")
	}

	scripts := []Script{{
		Bytes:      chunk[mainStart:missions.mainSize],
		Kind:       Main,
		BaseOffset: mainStart,
	}}

	fileSize := uint32(len(chunk))
	for i, start := range missions.offsets {
		end := fileSize
		if i+1 < len(missions.offsets) {
			end = missions.offsets[i+1]
		}
		if end <= start || int(end) > len(chunk) {
			continue // empty mission, skipped
		}
		scripts = append(scripts, Script{
			Bytes:      chunk[start:end],
			Kind:       Mission,
			BaseOffset: 0,
		})
	}

	if len(segments) == 6 {
		es := segments[externalsSeg]
		if int(es.after) <= len(chunk) && int(es.dest) <= len(chunk) && es.after <= es.dest {
			names := NewExternalsIterator(chunk[es.after:es.dest]).Collect()
			if len(names) > 0 {
				archive := NewImgArchive("script.img")
				for _, name := range names {
					b, err := archive.Extract(name)
					if err != nil {
						continue
					}
					scripts = append(scripts, Script{Bytes: b, Kind: External, BaseOffset: 0})
				}
			}
		}
	}

	return scripts, nil
}

// LoadFile memory-maps path read-only and runs Load against it. The
// returned closer must be called once the caller is done with every
// Script's Bytes (they alias the mapped region).
func LoadFile(path string, dict *OpcodeDictionary, dialect Dialect) ([]Script, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("can't read input file %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("can't stat input file %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, func() error { return nil }, fmt.Errorf("can't read input file %s: empty file", path)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("can't map input file %s: %w", path, err)
	}

	scripts, err := Load(data, dict, dialect)
	closer := func() error { return data.Unmap() }
	if err != nil {
		closer()
		return nil, nil, err
	}
	return scripts, closer, nil
}
