//go:build unit

package dmabuf_test

import (
	"testing"

	"github.com/emergingrobotics/go-isi/pkg/dmabuf"
	"github.com/emergingrobotics/go-isi/testutil"
)

func TestMapToCallerSharesPages(t *testing.T) {
	m := testutil.NewFakeMapper()

	b, err := dmabuf.Alloc(m, 4096, dmabuf.DirFromDevice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Release()

	mapping, err := b.MapToCaller()
	if err != nil {
		t.Fatalf("map to caller: %v", err)
	}
	defer mapping.Unmap()

	if len(mapping.Bytes()) != b.Size() {
		t.Errorf("view size: got %d, want %d", len(mapping.Bytes()), b.Size())
	}

	// Both views address the same physical pages.
	b.Bytes()[0] = 0xa5
	if mapping.Bytes()[0] != 0xa5 {
		t.Error("write through the owner view not visible in the caller view")
	}
	mapping.Bytes()[1] = 0x5a
	if b.Bytes()[1] != 0x5a {
		t.Error("write through the caller view not visible in the owner view")
	}
}

func TestMapToCallerHoldsReference(t *testing.T) {
	m := testutil.NewFakeMapper()

	b, err := dmabuf.Alloc(m, 4096, dmabuf.DirFromDevice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping, err := b.MapToCaller()
	if err != nil {
		t.Fatalf("map to caller: %v", err)
	}
	if b.NumUsers() != 2 {
		t.Errorf("expected reference count 2, got %d", b.NumUsers())
	}

	// The owner dropping its reference must not free the memory while
	// the caller mapping lives.
	b.Release()
	if m.MappedCount() != 1 {
		t.Error("expected device mapping alive under the caller view")
	}

	if err := mapping.Unmap(); err != nil {
		t.Fatalf("unmap: %v", err)
	}
	if m.MappedCount() != 0 {
		t.Error("expected teardown with the last reference")
	}
}

func TestMappingUnmapIsIdempotent(t *testing.T) {
	m := testutil.NewFakeMapper()

	b, err := dmabuf.Alloc(m, 4096, dmabuf.DirFromDevice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Release()

	mapping, err := b.MapToCaller()
	if err != nil {
		t.Fatalf("map to caller: %v", err)
	}

	if err := mapping.Unmap(); err != nil {
		t.Fatalf("first unmap: %v", err)
	}
	if err := mapping.Unmap(); err != nil {
		t.Fatalf("second unmap: %v", err)
	}
	if b.NumUsers() != 1 {
		t.Errorf("expected a single remaining reference, got %d", b.NumUsers())
	}
}

func TestMultipleCallerMappings(t *testing.T) {
	m := testutil.NewFakeMapper()

	b, err := dmabuf.Alloc(m, 4096, dmabuf.DirFromDevice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Release()

	m1, err := b.MapToCaller()
	if err != nil {
		t.Fatalf("first mapping: %v", err)
	}
	defer m1.Unmap()

	m2, err := b.MapToCaller()
	if err != nil {
		t.Fatalf("second mapping: %v", err)
	}
	defer m2.Unmap()

	m1.Bytes()[7] = 0x42
	if m2.Bytes()[7] != 0x42 {
		t.Error("independent caller views must share the same pages")
	}
	if b.NumUsers() != 3 {
		t.Errorf("expected reference count 3, got %d", b.NumUsers())
	}
}
