package sound

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const verifyConcurrency = 4

// Check is the result of inspecting one sound file.
type Check struct {
	Path   string
	Size   int64
	Format string
	Err    error
}

// OK reports whether the file can be handed to a player.
func (c Check) OK() bool {
	return c.Err == nil
}

// HumanSize renders the file size, e.g. "34 kB".
func (c Check) HumanSize() string {
	if c.Err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(c.Size))
}

// Verify inspects every path concurrently. Results keep the order of paths;
// per-file problems are reported in Check.Err and only cancellation fails
// the call.
func Verify(ctx context.Context, paths []string) ([]Check, error) {
	results := make([]Check, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = inspect(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, errors.Wrap(err, "verify sounds")
	}
	return results, nil
}

func inspect(path string) Check {
	check := Check{Path: path}
	f, err := os.Open(path)
	if err != nil {
		check.Err = err
		return check
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		check.Err = err
		return check
	}
	if info.IsDir() {
		check.Err = errors.Newf("%s is a directory", path)
		return check
	}
	check.Size = info.Size()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		check.Err = err
		return check
	}
	check.Format = sniff(header[:n])
	if check.Size == 0 {
		check.Err = errors.Newf("%s is empty", path)
	}
	return check
}

// sniff guesses the container from the first bytes of a file.
func sniff(h []byte) string {
	switch {
	case len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(h, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(h, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(h, []byte("ID3")):
		return "mp3"
	case len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return "unknown"
	}
}
