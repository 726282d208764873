package source

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strconv"
)

// lineMarker matches the markers a C preprocessor leaves in its output:
//
//	# 12 "src/foo.c" 2
//	#line 12 "src/foo.c"
var lineMarker = regexp.MustCompile(`^#\s*(?:line\s+)?(\d+)\s+"((?:[^"\\]|\\.)*)"`)

// Marker records that physical line Phys+1 of the preprocessed text is
// line Line of File.
type Marker struct {
	Phys int
	Line int
	File string
}

// LineMap maps physical lines of a preprocessed file to original
// locations. Markers are ordered by physical line.
type LineMap []Marker

// ScanLineMap collects the line markers of src.
func ScanLineMap(src []byte) LineMap {
	var m LineMap
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	phys := 0
	for sc.Scan() {
		phys++
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '#' {
			continue
		}
		sub := lineMarker.FindSubmatch(line)
		if sub == nil {
			continue
		}
		n, err := strconv.Atoi(string(sub[1]))
		if err != nil {
			continue
		}
		file, err := strconv.Unquote(`"` + string(sub[2]) + `"`)
		if err != nil {
			file = string(sub[2])
		}
		m = append(m, Marker{Phys: phys, Line: n, File: file})
	}
	return m
}

// Resolve maps physical line phys to (file, line). Lines before the first
// marker belong to path itself.
func (m LineMap) Resolve(path string, phys int) (string, int) {
	i := sort.Search(len(m), func(i int) bool { return m[i].Phys >= phys })
	if i == 0 {
		return path, phys
	}
	mk := m[i-1]
	return mk.File, mk.Line + (phys - mk.Phys - 1)
}

// MainFile returns the first marker naming a real file, skipping the
// preprocessor's "<built-in>" style pseudo files.
func (m LineMap) MainFile(path string) string {
	for _, mk := range m {
		if len(mk.File) > 0 && mk.File[0] != '<' {
			return mk.File
		}
	}
	return path
}
