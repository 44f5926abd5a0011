package ops

import (
	"bytes"
	"testing"
)

func TestMemoryReadFromPartition(t *testing.T) {
	m := &Memory{Partitions: map[string][]byte{
		"boot": []byte("0123456789"),
	}}

	data, st := m.ReadFromPartition("boot", 2, 3)
	if st != StatusOK {
		t.Fatalf("read: %v", st)
	}
	if !bytes.Equal(data, []byte("234")) {
		t.Errorf("read = %q, want %q", data, "234")
	}

	// Tail-relative offset.
	data, st = m.ReadFromPartition("boot", -4, 4)
	if st != StatusOK {
		t.Fatalf("tail read: %v", st)
	}
	if !bytes.Equal(data, []byte("6789")) {
		t.Errorf("tail read = %q, want %q", data, "6789")
	}

	if _, st := m.ReadFromPartition("missing", 0, 1); st != StatusNoSuchPartition {
		t.Errorf("missing partition status = %v, want NO_SUCH_PARTITION", st)
	}
	if _, st := m.ReadFromPartition("boot", 8, 4); st != StatusRangeOutsidePartition {
		t.Errorf("overrun status = %v, want RANGE_OUTSIDE_PARTITION", st)
	}
	if _, st := m.ReadFromPartition("boot", -20, 1); st != StatusRangeOutsidePartition {
		t.Errorf("far tail status = %v, want RANGE_OUTSIDE_PARTITION", st)
	}
}

func TestMemoryReadIsolated(t *testing.T) {
	img := []byte("immutable")
	m := &Memory{Partitions: map[string][]byte{"p": img}}
	data, st := m.ReadFromPartition("p", 0, 4)
	if st != StatusOK {
		t.Fatalf("read: %v", st)
	}
	data[0] = 'X'
	if img[0] != 'i' {
		t.Error("read aliases the backing image")
	}
}

func TestMemoryInjectedReadError(t *testing.T) {
	m := &Memory{
		Partitions: map[string][]byte{"boot": make([]byte, 16)},
		ReadErrors: map[string]Status{"boot": StatusIO},
	}
	if _, st := m.ReadFromPartition("boot", 0, 1); st != StatusIO {
		t.Errorf("status = %v, want IO", st)
	}
}

func TestMemoryRollbackIndexes(t *testing.T) {
	m := &Memory{RollbackIndexes: []uint64{0, 5}}

	v, st := m.ReadRollbackIndex(1)
	if st != StatusOK || v != 5 {
		t.Errorf("read loc 1 = (%d, %v), want (5, OK)", v, st)
	}

	// Locations beyond the table read as zero.
	v, st = m.ReadRollbackIndex(9)
	if st != StatusOK || v != 0 {
		t.Errorf("read loc 9 = (%d, %v), want (0, OK)", v, st)
	}

	if st := m.WriteRollbackIndex(3, 7); st != StatusOK {
		t.Fatalf("write: %v", st)
	}
	v, _ = m.ReadRollbackIndex(3)
	if v != 7 {
		t.Errorf("read-after-write = %d, want 7", v)
	}
}

func TestMemoryValidateVBMetaPublicKey(t *testing.T) {
	key := []byte{1, 2, 3}
	m := &Memory{TrustedKeys: [][]byte{key}, KeyLocation: 2}

	trust, loc, st := m.ValidateVBMetaPublicKey("vbmeta", key, nil)
	if st != StatusOK || trust != KeyTrusted || loc != 2 {
		t.Errorf("validate = (%v, %d, %v), want (trusted, 2, OK)", trust, loc, st)
	}

	trust, _, _ = m.ValidateVBMetaPublicKey("vbmeta", []byte{9}, nil)
	if trust != KeyUntrusted {
		t.Errorf("unknown key trust = %v, want untrusted", trust)
	}

	m.CustomKey = true
	trust, _, _ = m.ValidateVBMetaPublicKey("vbmeta", key, nil)
	if trust != KeyTrustedCustom {
		t.Errorf("custom key trust = %v, want trusted_custom", trust)
	}
}

func TestMemoryPreloaded(t *testing.T) {
	m := &Memory{Preloaded: map[string][]byte{"boot": []byte("img")}}
	data, ok := m.GetPreloadedPartition("boot")
	if !ok || !bytes.Equal(data, []byte("img")) {
		t.Errorf("preloaded = (%q, %v), want (img, true)", data, ok)
	}
	if _, ok := m.GetPreloadedPartition("other"); ok {
		t.Error("unexpected preloaded partition")
	}

	size, st := m.GetSizeOfPartition("boot")
	if st != StatusOK || size != 3 {
		t.Errorf("size = (%d, %v), want (3, OK)", size, st)
	}
}
