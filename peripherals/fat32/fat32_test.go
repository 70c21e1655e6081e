package fat32

import (
	"encoding/binary"
	"testing"
)

// memDevice is an in-memory BlockDevice: sector index -> 512-byte block.
type memDevice struct {
	sectors map[uint32][]byte
}

func newMemDevice() *memDevice { return &memDevice{sectors: map[uint32][]byte{}} }

func (m *memDevice) ReadBlock(addr uint32) ([]byte, error) {
	if b, ok := m.sectors[addr]; ok {
		return b, nil
	}
	return make([]byte, blockLen), nil
}

func (m *memDevice) put(addr uint32, b []byte) {
	buf := make([]byte, blockLen)
	copy(buf, b)
	m.sectors[addr] = buf
}

// buildVolume constructs a tiny single-FAT, single-cluster-per-sector
// volume: boot sector at 0, one FAT sector at 1, data region starting at 2,
// root directory occupying cluster 2 (data sector 0).
func buildVolume(t *testing.T) (*memDevice, *Volume) {
	t.Helper()
	dev := newMemDevice()

	boot := make([]byte, 90)
	binary.LittleEndian.PutUint16(boot[11:13], 512) // bytesPerSec
	boot[13] = 1                                     // secPerClus
	binary.LittleEndian.PutUint16(boot[14:16], 1)    // rsvdSecCnt
	boot[16] = 1                                     // numFATs
	binary.LittleEndian.PutUint32(boot[36:40], 1)    // fatSz32
	binary.LittleEndian.PutUint32(boot[44:48], 2)    // rootClus
	dev.put(0, boot)

	v, err := Mount(dev, 0)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return dev, v
}

func writeDirEntry(buf []byte, off int, name, ext string, attr uint8, firstClus, size uint32) {
	copy(buf[off:off+8], []byte(name+"        ")[:8])
	copy(buf[off+8:off+11], []byte(ext+"   ")[:3])
	buf[off+11] = attr
	binary.LittleEndian.PutUint16(buf[off+20:off+22], uint16(firstClus>>16))
	binary.LittleEndian.PutUint16(buf[off+26:off+28], uint16(firstClus))
	binary.LittleEndian.PutUint32(buf[off+28:off+32], size)
}

func TestMountParsesBootSector(t *testing.T) {
	_, v := buildVolume(t)
	if v.params.bytesPerSec != 512 {
		t.Fatalf("bytesPerSec = %d, want 512", v.params.bytesPerSec)
	}
	if v.RootDir() != 2 {
		t.Fatalf("RootDir() = %d, want 2", v.RootDir())
	}
	if v.dataStart != 2 { // fatStart(1) + numFATs(1)*fatSz32(1)
		t.Fatalf("dataStart = %d, want 2", v.dataStart)
	}
}

func TestReadDirAndOpen(t *testing.T) {
	dev, v := buildVolume(t)

	rootSec := v.startSecOfClus(v.RootDir())
	dirBuf := make([]byte, blockLen)
	writeDirEntry(dirBuf, 0, "README", "TXT", AttrArchive, 3, 11)
	dev.put(rootSec, dirBuf)

	entries, err := v.ReadDir(v.RootDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Name != "README" || entries[0].Ext != "TXT" {
		t.Fatalf("entry = %+v, want README.TXT", entries[0])
	}

	e, err := v.Open(v.RootDir(), "README", "TXT")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e.FileSize != 11 {
		t.Fatalf("FileSize = %d, want 11", e.FileSize)
	}

	_, err = v.Open(v.RootDir(), "NOPE", "TXT")
	if err != ErrNotFound {
		t.Fatalf("Open(missing) err = %v, want ErrNotFound", err)
	}
}

func TestReaderStreamsFileContent(t *testing.T) {
	dev, v := buildVolume(t)

	fileSec := v.startSecOfClus(3)
	fileBuf := make([]byte, blockLen)
	copy(fileBuf, "hello world")
	dev.put(fileSec, fileBuf)

	// terminate cluster 3's chain in the FAT sector (sector 1, offset 3*4).
	fatBuf := make([]byte, blockLen)
	binary.LittleEndian.PutUint32(fatBuf[12:16], 0x0FFFFFFF)
	dev.put(1, fatBuf)

	r := NewReader(v, Entry{FirstClus: 3, FileSize: 11})
	out := make([]byte, 11)
	n, err := r.Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 11 || string(out) != "hello world" {
		t.Fatalf("Read = %q (n=%d), want %q", out[:n], n, "hello world")
	}
}
