package sound

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyReportsEachFile(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "a.wav")
	ogg := filepath.Join(dir, "b.ogg")
	empty := filepath.Join(dir, "empty.mp3")
	require.NoError(t, os.WriteFile(wav, append([]byte("RIFF\x24\x08\x00\x00WAVE"), make([]byte, 2000)...), 0o600))
	require.NoError(t, os.WriteFile(ogg, []byte("OggS\x00\x02"), 0o600))
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	paths := []string{wav, ogg, filepath.Join(dir, "missing.flac"), empty, dir}
	checks, err := Verify(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, checks, len(paths))

	assert.True(t, checks[0].OK())
	assert.Equal(t, "wav", checks[0].Format)
	assert.Equal(t, "2.0 kB", checks[0].HumanSize())

	assert.True(t, checks[1].OK())
	assert.Equal(t, "ogg", checks[1].Format)

	assert.False(t, checks[2].OK())
	assert.True(t, os.IsNotExist(checks[2].Err))
	assert.Equal(t, "-", checks[2].HumanSize())

	assert.False(t, checks[3].OK(), "empty files cannot be played")
	assert.False(t, checks[4].OK(), "directories cannot be played")

	for i, c := range checks {
		assert.Equal(t, paths[i], c.Path, "results keep input order")
	}
}

func TestVerifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Verify(ctx, []string{"/nonexistent"})
	require.Error(t, err)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "flac", sniff([]byte("fLaC\x00")))
	assert.Equal(t, "mp3", sniff([]byte("ID3\x03")))
	assert.Equal(t, "mp3", sniff([]byte{0xFF, 0xFB, 0x90}))
	assert.Equal(t, "unknown", sniff([]byte("hello")))
}
