package dmxp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenOrCreate_InitializesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, 4<<20)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, Magic, loadU64(r.Base(), offMagic))
	require.Equal(t, LayoutVersion, loadU32(r.Base(), offVersion))
	require.Equal(t, uint32(MaxChannels), loadU32(r.Base(), offMaxChannels))
}

func TestOpenOrCreate_Reattach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r1, err := OpenOrCreate(path, 4<<20)
	require.NoError(t, err)
	ch, err := r1.CreateChannel(3, 8)
	require.NoError(t, err)
	require.NoError(t, ch.Send(MessageMeta{}, []byte("x")))
	require.NoError(t, r1.Close())

	r2, err := OpenOrCreate(path, 0)
	require.NoError(t, err)
	defer r2.Close()

	ch2, err := r2.OpenChannel(3)
	require.NoError(t, err)
	stats := ch2.Stats()
	// Reopening picks up existing cursors; consumers resume at head,
	// they do not replay past messages (spec §6 persistence).
	require.Equal(t, uint64(0), stats.Head)
	require.Equal(t, uint64(1), stats.Tail)
}

func TestOpenOrCreate_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, 4<<20)
	require.NoError(t, err)
	storeU64(r.Base(), offMagic, 0xDEADBEEF)
	require.NoError(t, r.Close())

	_, err = OpenOrCreate(path, 0)
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, CodeLayoutMismatch, derr.Code)
}

func TestOpenOrCreate_RejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, 4<<20)
	require.NoError(t, err)
	storeU32(r.Base(), offVersion, 2)
	require.NoError(t, r.Close())

	_, err = OpenOrCreate(path, 0)
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, CodeLayoutMismatch, derr.Code)
}

func TestOpenOrCreate_TooSmallExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	r, err := OpenOrCreate(path, 4<<20)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, os.Truncate(path, GlobalHeaderSize-1))

	_, err = OpenOrCreate(path, 0)
	require.Error(t, err)
}
