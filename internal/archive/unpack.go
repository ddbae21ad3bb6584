package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
)

const archiveExt = ".zip"

// ErrExtractLimit is returned when extraction would exceed the configured
// uncompressed size budget.
var ErrExtractLimit = errors.New("uncompressed size limit exceeded")

// errUnsafePath marks an entry whose name escapes the extraction directory.
var errUnsafePath = errors.New("entry path escapes extraction directory")

// workspaceError marks a failure writing to the local workspace, as opposed to
// a failure reading the archive itself.
type workspaceError struct {
	err error
}

func (e *workspaceError) Error() string { return "workspace: " + e.err.Error() }
func (e *workspaceError) Unwrap() error { return e.err }

func workspaceErr(err error) error {
	if err == nil {
		return nil
	}
	return &workspaceError{err: err}
}

// archiveFailure reports err as a corrupt entry unless it came from the
// workspace, in which case it is returned as a plain error.
func archiveFailure(entry string, err error) error {
	var we *workspaceError
	if errors.As(err, &we) {
		return fmt.Errorf("extract %s: %w", entry, err)
	}
	return &domain.ArchiveError{Entry: entry, Err: err}
}

// InnerArchive is a station-level archive extracted into its own directory.
type InnerArchive struct {
	// Name is the archive base name without extension, made unique per run.
	Name string
	// Dir holds the extracted contents.
	Dir string
	// Source is the archive's path inside the outer archive.
	Source string
}

// BaseName is the archive's own file name without extension. Unlike Name it
// is not made unique, so two archives may share it.
func (a InnerArchive) BaseName() string {
	base := path.Base(a.Source)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Result lists the inner archives extracted from one upload.
type Result struct {
	Inner    []InnerArchive
	Warnings []domain.Warning
}

// Unpacker extracts the two-level outer/inner archive structure. Archives
// nested inside inner archives are extracted as plain files and never opened.
type Unpacker struct {
	maxBytes int64
	logger   *slog.Logger
}

// NewUnpacker creates an Unpacker. maxBytes caps the total uncompressed size
// written per invocation; zero or negative disables the cap.
func NewUnpacker(maxBytes int64, logger *slog.Logger) *Unpacker {
	return &Unpacker{maxBytes: maxBytes, logger: logger}
}

// Unpack extracts blob into ws/outer and every inner archive found there into
// ws/inner/<name>.
//
// A corrupt outer archive or an exhausted size budget aborts with an error
// wrapping domain.ErrArchiveCorrupt. A corrupt inner archive is skipped and
// reported as a warning. Workspace write failures abort with a plain error.
func (u *Unpacker) Unpack(ws *Workspace, blob []byte) (Result, error) {
	outer, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return Result{}, &domain.ArchiveError{Entry: "upload", Err: err}
	}

	budget := newBudget(u.maxBytes)
	outerDir := ws.Path("outer")
	if err := extract(outer.File, outerDir, budget); err != nil {
		return Result{}, archiveFailure("upload", err)
	}

	paths, err := findArchives(outerDir)
	if err != nil {
		return Result{}, fmt.Errorf("scan extracted upload: %w", err)
	}

	var res Result
	names := make(map[string]int)
	for _, path := range paths {
		rel, _ := filepath.Rel(outerDir, path)
		rel = filepath.ToSlash(rel)
		name := uniqueName(names, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		dest := ws.Path("inner", name)

		err := extractFile(path, dest, budget)
		var we *workspaceError
		if errors.Is(err, ErrExtractLimit) || errors.As(err, &we) {
			return Result{}, archiveFailure(rel, err)
		}
		if err != nil {
			archiveErr := &domain.ArchiveError{Entry: rel, Err: err}
			u.logger.Warn("skipping corrupt inner archive", "archive", rel, "error", err)
			res.Warnings = append(res.Warnings, domain.Warning{
				Kind:    domain.WarningArchiveCorrupt,
				Source:  rel,
				Message: archiveErr.Error(),
			})
			_ = os.RemoveAll(dest)
			continue
		}

		u.logger.Debug("inner archive extracted", "archive", rel, "dir", name)
		res.Inner = append(res.Inner, InnerArchive{Name: name, Dir: dest, Source: rel})
	}
	return res, nil
}

// findArchives walks dir and returns the archive files in lexical order.
// macOS resource-fork entries are ignored.
func findArchives(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__MACOSX" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "._") || !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(name), archiveExt) {
			out = append(out, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

func extractFile(path, dest string, b *budget) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return extract(r.File, dest, b)
}

func extract(files []*zip.File, dest string, b *budget) error {
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return workspaceErr(err)
	}
	for _, f := range files {
		if err := extractEntry(f, dest, b); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string, b *budget) error {
	target, err := safeJoin(dest, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return workspaceErr(os.MkdirAll(target, 0o700))
	case !mode.IsRegular():
		// Symlinks and devices are never materialized.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return workspaceErr(err)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return workspaceErr(err)
	}
	if err := b.copy(workspaceWriter{out}, rc); err != nil {
		out.Close()
		return err
	}
	return workspaceErr(out.Close())
}

// workspaceWriter tags write errors so they are not mistaken for read errors
// from the archive entry.
type workspaceWriter struct {
	w io.Writer
}

func (w workspaceWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	return n, workspaceErr(err)
}

// safeJoin resolves an entry name under dest, rejecting absolute paths and
// parent traversal.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", errUnsafePath
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errUnsafePath
	}
	return target, nil
}

func uniqueName(seen map[string]int, base string) string {
	if base == "" {
		base = "archive"
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		candidate := base + "-" + strconv.Itoa(n)
		for seen[candidate] > 0 {
			seen[base]++
			candidate = base + "-" + strconv.Itoa(seen[base])
		}
		seen[candidate]++
		return candidate
	}
	return base
}

// budget tracks the uncompressed bytes still allowed for one invocation.
type budget struct {
	limited   bool
	remaining int64
}

func newBudget(maxBytes int64) *budget {
	return &budget{limited: maxBytes > 0, remaining: maxBytes}
}

func (b *budget) copy(dst io.Writer, src io.Reader) error {
	if !b.limited {
		_, err := io.Copy(dst, src)
		return err
	}
	n, err := io.Copy(dst, io.LimitReader(src, b.remaining+1))
	b.remaining -= n
	if err != nil {
		return err
	}
	if b.remaining < 0 {
		return ErrExtractLimit
	}
	return nil
}
