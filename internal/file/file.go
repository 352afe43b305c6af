package file

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/klauspost/pgzip"
)

const RECEIVE_TEMP_FILE_NAME_PREFIX = "logportal-receive-temp"

const (
	LogExtension        = ".ulg"
	CompressedExtension = ".gz"
)

// ------------------------------------------------------- Store -------------------------------------------------------

// Store keeps logs in temporary files while they are transferred and moves them to
// OutDir once complete.
type Store struct {
	TempDir  string // Defaults to os.TempDir()
	OutDir   string
	Compress bool // Commit logs as pgzip compressed .ulg.gz files
}

// Create creates an empty temporary log file.
func (s Store) Create() (logfetch.Sink, error) {
	dir := s.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, RECEIVE_TEMP_FILE_NAME_PREFIX)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Commit moves the temporary file at path to OutDir under the provided name and
// returns the final path. An existing log with the same name is replaced.
func (s Store) Commit(path, name string) (string, error) {
	if err := os.MkdirAll(s.OutDir, 0755); err != nil {
		return "", err
	}

	target := filepath.Join(s.OutDir, name+LogExtension)
	if s.Compress {
		target += CompressedExtension
		if err := compressFile(path, target); err != nil {
			return "", err
		}
		return target, os.Remove(path)
	}
	if err := os.Rename(path, target); err != nil {
		// Rename fails across devices, fall back to copying.
		if err := copyFile(path, target); err != nil {
			return "", err
		}
		return target, os.Remove(path)
	}
	return target, nil
}

// Discard removes the temporary file at path.
func (s Store) Discard(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open opens a committed log, decompressing it if needed.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExtension) {
		return f, nil
	}
	gr, err := pgzip.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipFile{Reader: gr, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	if err := g.Reader.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// IsLog reports whether the file name carries a log extension.
func IsLog(name string) bool {
	return strings.HasSuffix(name, LogExtension) || strings.HasSuffix(name, LogExtension+CompressedExtension)
}

// ----------------------------------------------------- Utilities -----------------------------------------------------

// Size returns the uncompressed size of the log at path.
func Size(path string) (int64, error) {
	if !strings.HasSuffix(path, CompressedExtension) {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(io.Discard, r)
}

// optimistically remove files created by logportal with the specified prefix
func RemoveTemporaryFiles(prefix string) {
	tempFiles, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, tempFile := range tempFiles {
		fileInfo, err := tempFile.Info()
		if err != nil {
			continue
		}
		fileName := fileInfo.Name()
		if strings.HasPrefix(fileName, prefix) {
			os.Remove(filepath.Join(os.TempDir(), fileName))
		}
	}
}

// ------------------------------------------------------- Helper ------------------------------------------------------

// compressFile writes src into dst through chained writers: gw -> buffered writer -> dst.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	gw := pgzip.NewWriter(bw)
	if _, err := io.Copy(gw, in); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return out.Sync()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
