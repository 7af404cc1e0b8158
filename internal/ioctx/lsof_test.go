package ioctx

import (
	"errors"
	"testing"

	"github.com/codimo/glacier/internal/core"
)

const sampleLsof = `p4242
cBlender
f12
lW
n/work/scene/cube.blend
f13
l
n/work/scene/readme.txt
p777
cFinder
f3
lr
n/work/scene/cube.blend
p888
cmdworker
f9
lu
n/elsewhere/other.bin
`

func TestParseLsofOutput(t *testing.T) {
	handles := parseLsofOutput(sampleLsof)
	if len(handles) != 4 {
		t.Fatalf("expected 4 handles, got %d", len(handles))
	}

	first := handles[0]
	if first.PID != 4242 || first.Process != "Blender" || first.LockType != "W" {
		t.Errorf("unexpected first handle: %+v", first)
	}
	if first.Path != "/work/scene/cube.blend" {
		t.Errorf("unexpected path: %s", first.Path)
	}

	// The second file set of the same process has no lock record; the
	// previous set's lock must not leak into it.
	if handles[1].LockType != "" {
		t.Errorf("lock leaked across file sets: %q", handles[1].LockType)
	}

	if handles[2].PID != 777 || handles[2].LockType != "r" {
		t.Errorf("unexpected third handle: %+v", handles[2])
	}
}

func TestWriteLockErrors(t *testing.T) {
	handles := parseLsofOutput(sampleLsof)
	errs := writeLockErrors("/work/scene", []string{"cube.blend", "readme.txt"}, handles)

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	var fw *core.FileWrittenError
	if !errors.As(errs[0], &fw) {
		t.Fatalf("expected FileWrittenError, got %T", errs[0])
	}
	if fw.Process != "Blender" {
		t.Errorf("expected the writing process name, got %q", fw.Process)
	}
}

func TestWriteLockErrorsSkipsOutside(t *testing.T) {
	handles := []FileHandle{
		{PID: 1, Process: "x", LockType: "W", Path: "/outside/f.bin"},
	}
	errs := writeLockErrors("/work/scene", []string{"f.bin"}, handles)
	if len(errs) != 0 {
		t.Errorf("handles outside dir must be skipped, got %d errors", len(errs))
	}
}

func TestWriteLockViolationAggregates(t *testing.T) {
	v := &core.WriteLockViolation{Errors: []error{
		&core.FileWrittenError{Path: "a.bin", Process: "p1"},
		&core.FileWrittenError{Path: "b.bin"},
	}}
	var fw *core.FileWrittenError
	if !errors.As(v, &fw) {
		t.Error("errors.As must reach the aggregated failures")
	}
}
