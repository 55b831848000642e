package assembler

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DumpFormats lists the memory dump formats accepted by DumpSegment
var DumpFormats = []string{"hextext", "binarytext", "binary", "ascii"}

// DumpSegment writes the assembled contents of a segment ("text",
// "data", "ktext", "kdata", "extern") in the requested format:
//
//	hextext     one word per line as 8 hex digits
//	binarytext  one word per line as 32 binary digits
//	binary      raw bytes in memory order
//	ascii       printable rendering, one word per line
//
// The range runs from the segment base to its emit cursor, so only
// what this assembly produced is written.
func (a *Assembler) DumpSegment(name, format string, w io.Writer) error {
	seg, ok := a.segments[strings.TrimPrefix(strings.ToLower(name), ".")]
	if !ok {
		names := make([]string, 0, len(a.segments))
		for n := range a.segments {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown segment %q (known: %s)", name, strings.Join(names, ", "))
	}
	if seg.Cursor == seg.First {
		return fmt.Errorf("segment %q is empty", name)
	}

	out := bufio.NewWriter(w)
	for addr := seg.First; addr < seg.Cursor; addr += 4 {
		word, err := a.Machine.Memory.GetWord(addr, false)
		if err != nil {
			return err
		}
		switch strings.ToLower(format) {
		case "hextext":
			fmt.Fprintf(out, "%08x\n", word)
		case "binarytext":
			fmt.Fprintf(out, "%032b\n", word)
		case "binary":
			buf := [4]byte{}
			if a.Machine.Memory.LittleEndian {
				buf[0], buf[1], buf[2], buf[3] = byte(word), byte(word>>8), byte(word>>16), byte(word>>24)
			} else {
				buf[0], buf[1], buf[2], buf[3] = byte(word>>24), byte(word>>16), byte(word>>8), byte(word)
			}
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		case "ascii":
			var sb strings.Builder
			for k := 0; k < 4; k++ {
				b := byte(word >> (8 * uint(k)))
				if b >= 0x20 && b < 0x7f {
					sb.WriteByte(b)
				} else {
					sb.WriteByte('.')
				}
			}
			fmt.Fprintf(out, "%s\n", sb.String())
		default:
			return fmt.Errorf("unknown dump format %q (known: %s)", format, strings.Join(DumpFormats, ", "))
		}
	}
	return out.Flush()
}
