package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"backupbot/pkg/logx"
)

// Format is the archive container + compression.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "tar.gz", "targz", "tgz":
		return FormatTarGz, nil
	case "tar.zst", "tarzst", "tzst":
		return FormatTarZst, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

func (f Format) ext() string { return string(f) }

// Archiver packages the configured source tree into a single archive
// file. It is stateless; one Archiver may run concurrent Create calls
// (manual and automatic backups can overlap).
type Archiver struct {
	root  string
	rules Rules
	log   logx.Logger
}

func NewArchiver(root string, rules Rules, log logx.Logger) *Archiver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Archiver{root: root, rules: rules, log: log}
}

// Create writes <destDir>/<baseName>.<ext>, appending a numeric suffix
// if the name is taken. The final name is reserved with an exclusive
// create before anything is written, so overlapping manual and
// automatic backups in the same second each get their own file. The
// archive itself is assembled in a temp file and renamed over the
// reservation so a crash never leaves a half-written archive that
// looks valid. progress (optional) receives (done, total) file counts.
func (a *Archiver) Create(ctx context.Context, destDir, baseName string, format Format, progress func(done, total int)) (string, int64, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create backup dir: %w", err)
	}
	if err := preflightDest(destDir); err != nil {
		return "", 0, err
	}

	files, err := a.collect(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(files) == 0 {
		return "", 0, fmt.Errorf("no files matched the backup rules under %s", a.root)
	}

	finalPath, err := claimPath(destDir, baseName, format.ext())
	if err != nil {
		return "", 0, fmt.Errorf("reserve archive name: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, ".backupbot-*.tmp")
	if err != nil {
		_ = os.Remove(finalPath)
		return "", 0, fmt.Errorf("create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		_ = os.Remove(finalPath)
	}

	if err := a.write(ctx, tmp, format, files, progress); err != nil {
		cleanup()
		return "", 0, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		_ = os.Remove(finalPath)
		return "", 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		_ = os.Remove(tmpName)
		_ = os.Remove(finalPath)
		return "", 0, fmt.Errorf("finalize archive: %w", err)
	}

	fi, err := os.Stat(finalPath)
	if err != nil {
		return finalPath, 0, nil
	}
	return finalPath, fi.Size(), nil
}

type archiveEntry struct {
	abs string
	rel string
}

// collect walks the source root and applies the rules. Walk errors on
// individual entries are skipped with a warning; only a broken root is
// fatal.
func (a *Archiver) collect(ctx context.Context) ([]archiveEntry, error) {
	var out []archiveEntry
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == a.root {
				return err
			}
			a.log.Warn("skipping unreadable entry", logx.String("path", path), logx.Err(err))
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return nil
		}
		if !a.rules.Match(filepath.ToSlash(rel)) {
			return nil
		}
		out = append(out, archiveEntry{abs: path, rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", a.root, err)
	}
	return out, nil
}

func (a *Archiver) write(ctx context.Context, w io.Writer, format Format, files []archiveEntry, progress func(done, total int)) error {
	switch format {
	case FormatZip:
		return a.writeZip(ctx, w, files, progress)
	case FormatTar, FormatTarGz, FormatTarZst:
		return a.writeTar(ctx, w, format, files, progress)
	default:
		return fmt.Errorf("unknown archive format %q", format)
	}
}

func (a *Archiver) writeTar(ctx context.Context, w io.Writer, format Format, files []archiveEntry, progress func(done, total int)) error {
	var (
		compressed io.WriteCloser
		err        error
	)
	switch format {
	case FormatTarGz:
		compressed = pgzip.NewWriter(w)
	case FormatTarZst:
		compressed, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
	}

	dst := w
	if compressed != nil {
		dst = compressed
	}
	tw := tar.NewWriter(dst)

	total := len(files)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.addTarEntry(tw, f); err != nil {
			// Permission problems on single files must not abort the
			// whole backup; everything else does.
			if os.IsPermission(err) {
				a.log.Warn("no permission, file skipped", logx.String("path", f.abs))
			} else {
				return err
			}
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if compressed != nil {
		if err := compressed.Close(); err != nil {
			return fmt.Errorf("close compressor: %w", err)
		}
	}
	return nil
}

func (a *Archiver) addTarEntry(tw *tar.Writer, f archiveEntry) error {
	fi, err := os.Stat(f.abs)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = f.rel

	src, err := os.Open(f.abs)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

func (a *Archiver) writeZip(ctx context.Context, w io.Writer, files []archiveEntry, progress func(done, total int)) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	total := len(files)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.addZipEntry(zw, f); err != nil {
			if os.IsPermission(err) {
				a.log.Warn("no permission, file skipped", logx.String("path", f.abs))
			} else {
				return err
			}
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return zw.Close()
}

func (a *Archiver) addZipEntry(zw *zip.Writer, f archiveEntry) error {
	fi, err := os.Stat(f.abs)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = f.rel
	hdr.Method = zip.Deflate

	src, err := os.Open(f.abs)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// claimPath reserves the archive name with O_EXCL so no archive is ever
// overwritten; collisions, including two concurrent backups computing
// the same base name, get a numeric suffix before the extension. The
// empty placeholder is replaced by the rename (or removed on failure).
func claimPath(dir, base, ext string) (string, error) {
	path := filepath.Join(dir, base+"."+ext)
	for i := 2; ; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s.%d.%s", base, i, ext))
	}
}

// SanitizeName replaces characters that are unsafe in file names.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '|', '<', '>':
			return '_'
		default:
			return r
		}
	}, name)
}
