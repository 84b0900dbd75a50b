package wal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/nexuslog/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSegment_Naming(t *testing.T) {
	dir := t.TempDir()

	seg, err := CreateSegment(dir, 42)
	require.NoError(t, err)
	defer seg.Close()

	name := filepath.Base(seg.Path())
	assert.True(t, strings.HasPrefix(name, core.SegmentFilePrefix))
	assert.True(t, strings.HasSuffix(name, core.SegmentFileSuffix))

	_, startSeq, err := core.ParseSegmentFileName(name)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), startSeq)
	assert.Equal(t, uint64(42), seg.StartSeqNum())
}

func TestCreateSegment_CollisionBumpsTimestamp(t *testing.T) {
	dir := t.TempDir()

	// Creating segments with the same starting sequence back to back can
	// land in the same millisecond; the names must still differ.
	first, err := CreateSegment(dir, 1)
	require.NoError(t, err)
	defer first.Close()

	second, err := CreateSegment(dir, 1)
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.Path(), second.Path())
}

func TestSegmentWriter_AppendAndReadBack(t *testing.T) {
	dir := t.TempDir()

	seg, err := CreateSegment(dir, 1)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		_, err := seg.AppendRecord(core.NewRecord(i, []byte(fmt.Sprintf(`{"key":"key-%d"}`, i))))
		require.NoError(t, err)
	}
	require.NoError(t, seg.Close())

	var seqs []uint64
	err = readSegmentRecords(seg.Path(), func(rec core.Record) {
		seqs = append(seqs, rec.SequenceNumber)
	}, func([]byte, error) {
		t.Fatal("unexpected corrupt line")
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
}

func TestSegmentWriter_AppendReturnsBytesQueued(t *testing.T) {
	dir := t.TempDir()

	seg, err := CreateSegment(dir, 1)
	require.NoError(t, err)

	n, err := seg.AppendRecord(core.NewRecord(1, []byte(`{"key":"a"}`)))
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	info, err := os.Stat(seg.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(n), info.Size(), "reported byte count must match what lands on disk")
}

func TestSegmentWriter_SizeFlushesFirst(t *testing.T) {
	dir := t.TempDir()

	seg, err := CreateSegment(dir, 1)
	require.NoError(t, err)
	defer seg.Close()

	size, err := seg.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	n, err := seg.AppendRecord(core.NewRecord(1, []byte(`{"key":"a"}`)))
	require.NoError(t, err)

	// The record is only buffered, but Size must account for it.
	size, err = seg.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(n), size)
}

func TestSegmentWriter_CloseIsTerminal(t *testing.T) {
	dir := t.TempDir()

	seg, err := CreateSegment(dir, 1)
	require.NoError(t, err)
	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close(), "double close is a no-op")

	_, err = seg.AppendRecord(core.NewRecord(1, []byte(`{}`)))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.ErrorIs(t, seg.Flush(), os.ErrClosed)
}

func TestListSegmentFiles_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()

	seg1, err := CreateSegment(dir, 1)
	require.NoError(t, err)
	require.NoError(t, seg1.Close())
	seg2, err := CreateSegment(dir, 100)
	require.NoError(t, err)
	require.NoError(t, seg2.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wal_bad_name.log.tmp"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

	names, err := listSegmentFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(seg1.Path()), filepath.Base(seg2.Path())}, names)
}

func TestWAL_RotationBySize(t *testing.T) {
	opts := testWALOptions(t, t.TempDir())
	opts.MaxSegmentSize = 1024 // ~1KiB so a handful of records rotate

	w, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	const total = 100
	for i := 1; i <= total; i++ {
		_, err := w.Append(context.Background(), testOp{Type: "put", Key: fmt.Sprintf("key-%d", i), Value: strings.Repeat("v", 64)})
		require.NoError(t, err)
	}

	segmentDir := filepath.Join(w.Path(), core.SegmentDirName)
	names, err := listSegmentFiles(segmentDir)
	require.NoError(t, err)
	require.Greater(t, len(names), 1, "appends beyond MaxSegmentSize must rotate")

	// Concatenating all segments in name order yields the full sequence.
	var seqs []uint64
	for _, name := range names {
		err := readSegmentRecords(filepath.Join(segmentDir, name), func(rec core.Record) {
			seqs = append(seqs, rec.SequenceNumber)
		}, func([]byte, error) {
			t.Fatal("unexpected corrupt line")
		})
		require.NoError(t, err)
	}
	require.Len(t, seqs, total)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}

	// Segment start sequences match their file names.
	for _, name := range names {
		_, startSeq, err := core.ParseSegmentFileName(name)
		require.NoError(t, err)
		assert.Greater(t, startSeq, uint64(0))
	}
}
