package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanLineMap(t *testing.T) {
	src := []byte(`# 1 "main.c"
# 1 "<built-in>"
# 1 "main.c"
# 1 "inc/util.h" 1
static int helper(void);
# 3 "main.c" 2
#line 40 "gen\\out.c"
int main(void) { return 0; }
#pragma once
`)
	m := ScanLineMap(src)
	assert.Equal(t, LineMap{
		{Phys: 1, Line: 1, File: "main.c"},
		{Phys: 2, Line: 1, File: "<built-in>"},
		{Phys: 3, Line: 1, File: "main.c"},
		{Phys: 4, Line: 1, File: "inc/util.h"},
		{Phys: 6, Line: 3, File: "main.c"},
		{Phys: 7, Line: 40, File: `gen\out.c`},
	}, m)
	assert.Equal(t, "main.c", m.MainFile("main.i"))
}

func TestResolve(t *testing.T) {
	m := LineMap{
		{Phys: 3, Line: 1, File: "inc/util.h"},
		{Phys: 10, Line: 20, File: "main.c"},
	}

	tests := []struct {
		phys int
		file string
		line int
	}{
		{1, "main.i", 1},
		{3, "main.i", 3},
		{4, "inc/util.h", 1},
		{9, "inc/util.h", 6},
		{11, "main.c", 20},
		{15, "main.c", 24},
	}
	for _, tt := range tests {
		file, line := m.Resolve("main.i", tt.phys)
		assert.Equal(t, tt.file, file, "phys %d", tt.phys)
		assert.Equal(t, tt.line, line, "phys %d", tt.phys)
	}
}

func TestMainFileWithoutMarkers(t *testing.T) {
	var m LineMap
	assert.Equal(t, "x.i", m.MainFile("x.i"))
}
