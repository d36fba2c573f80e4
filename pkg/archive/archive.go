// Package archive implements the rpg package archive format: a
// gzip-compressed tar containing metadata.json, a files/ subtree mirroring
// the install prefix, and optional pre-install/post-install/pre-remove
// scripts.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gitrustux/rustica/pkg/reproducible"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/signature"
	"github.com/gitrustux/rustica/pkg/version"
)

// Manifest is the metadata.json schema embedded in every archive.
type Manifest struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description,omitempty"`
	Kind          string            `json:"type"`
	Arch          string            `json:"arch"`
	Dependencies  map[string]string `json:"dependencies,omitempty"` // name -> version constraint
	Conflicts     []string          `json:"conflicts,omitempty"`
	Size          uint64            `json:"size"`
	SHA256        string            `json:"sha256"`
	URL           string            `json:"url"`
	Maintainer    string            `json:"maintainer,omitempty"`
	Homepage      string            `json:"homepage,omitempty"`
	License       string            `json:"license,omitempty"`
	InstalledSize uint64            `json:"installed_size,omitempty"`
	Files         []string          `json:"files,omitempty"`
	Directories   []string          `json:"directories,omitempty"`
	PreInstall    string            `json:"pre_install,omitempty"`
	PostInstall   string            `json:"post_install,omitempty"`
	PreRemove     string            `json:"pre_remove,omitempty"`
	Signature     string            `json:"signature"`
}

// Metadata is the parsed, typed view of a Manifest used elsewhere in rpg
// (Transaction, Registry).
type Metadata struct {
	Name      string
	Version   version.Version
	Kind      string
	Size      uint64
	SHA256    string
	Signature signature.Signature
	URL       string
}

// ToMetadata parses and validates the manifest's string fields into typed
// Metadata.
func (m Manifest) ToMetadata() (Metadata, error) {
	v, err := version.Parse(m.Version)
	if err != nil {
		return Metadata{}, err
	}
	sig, err := signature.ParseSignature(m.Signature)
	if err != nil {
		return Metadata{}, err
	}
	if m.Name == "" {
		return Metadata{}, rpgerrors.New(rpgerrors.Serialization, "manifest name must not be empty")
	}
	if len(m.SHA256) != 64 {
		return Metadata{}, rpgerrors.New(rpgerrors.Serialization, "manifest sha256 must be 64 hex characters")
	}
	if m.URL == "" {
		return Metadata{}, rpgerrors.New(rpgerrors.Serialization, "manifest url must not be empty")
	}
	return Metadata{
		Name:      m.Name,
		Version:   v,
		Kind:      m.Kind,
		Size:      m.Size,
		SHA256:    m.SHA256,
		Signature: sig,
		URL:       m.URL,
	}, nil
}

// DependencyConstraints parses the manifest's declared dependency
// constraints, failing with InvalidVersion on a malformed constraint
// string.
func (m Manifest) DependencyConstraints() (map[string]version.Constraint, error) {
	if len(m.Dependencies) == 0 {
		return nil, nil
	}
	result := make(map[string]version.Constraint, len(m.Dependencies))
	for name, raw := range m.Dependencies {
		c, err := version.ParseConstraint(raw)
		if err != nil {
			return nil, err
		}
		result[name] = c
	}
	return result, nil
}

// Archive is a handle to an rpg package file and its parsed metadata.
type Archive struct {
	Path     string
	Metadata Metadata
}

// Open reads an existing archive just far enough to locate and parse
// metadata.json.
func Open(path string) (*Archive, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.PackageNotFound, err, "opening archive %s", path)
	}
	manifest, err := readManifest(path)
	if err != nil {
		return nil, err
	}
	metadata, err := manifest.ToMetadata()
	if err != nil {
		return nil, err
	}
	return &Archive{Path: path, Metadata: metadata}, nil
}

func readManifest(archivePath string) (Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Manifest{}, rpgerrors.Wrap(rpgerrors.Io, err, "opening %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Manifest{}, rpgerrors.Wrap(rpgerrors.Io, err, "decompressing %s", archivePath)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, rpgerrors.Wrap(rpgerrors.Io, err, "reading %s", archivePath)
		}
		if path.Base(hdr.Name) == "metadata.json" {
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return Manifest{}, rpgerrors.Wrap(rpgerrors.Serialization, err, "parsing metadata.json")
			}
			return m, nil
		}
	}
	return Manifest{}, rpgerrors.New(rpgerrors.Other, "metadata.json not found in package")
}

// clampTime returns the timestamp stamped on every tar entry. It honors
// SOURCE_DATE_EPOCH so archives built from identical inputs are
// byte-for-byte reproducible.
func clampTime() time.Time { return reproducible.Now() }

// StagingFile is one file to place under files/ in the archive, keyed by
// its destination path relative to the install prefix (e.g. "usr/bin/ed").
type StagingFile struct {
	RelPath string
	Source  string // path to the file's contents on disk
}

// Create builds a new archive at path from a manifest and a set of staged
// files, without touching a temporary staging directory: files are copied
// directly from their source paths into the files/ subtree of the tar
// stream.
func Create(path string, manifest Manifest, files []StagingFile) (*Archive, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", path)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Serialization, err, "marshalling metadata.json")
	}
	if err := writeTarFile(tw, "metadata.json", manifestJSON); err != nil {
		return nil, err
	}

	sorted := make([]StagingFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	for _, f := range sorted {
		content, err := os.ReadFile(f.Source)
		if err != nil {
			return nil, rpgerrors.Wrap(rpgerrors.Io, err, "reading %s", f.Source)
		}
		name := "files/" + strings.TrimPrefix(f.RelPath, "/")
		if err := writeTarFile(tw, name, content); err != nil {
			return nil, err
		}
	}

	for _, s := range []struct{ name, script string }{
		{"scripts/pre-install.sh", manifest.PreInstall},
		{"scripts/post-install.sh", manifest.PostInstall},
		{"scripts/pre-remove.sh", manifest.PreRemove},
	} {
		if s.script == "" {
			continue
		}
		if err := writeTarFileMode(tw, s.name, []byte(s.script), 0o755); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "finalizing tar")
	}
	if err := gz.Close(); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Io, err, "finalizing gzip")
	}

	metadata, err := manifest.ToMetadata()
	if err != nil {
		return nil, err
	}
	return &Archive{Path: path, Metadata: metadata}, nil
}

func writeTarFile(tw *tar.Writer, name string, content []byte) error {
	return writeTarFileMode(tw, name, content, 0o644)
}

func writeTarFileMode(tw *tar.Writer, name string, content []byte, mode int64) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(content)),
		Mode:    mode,
		ModTime: clampTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing header for %s", name)
	}
	if _, err := tw.Write(content); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing content for %s", name)
	}
	return nil
}

// CreateFromDir walks sourceDir and archives every regular file under it
// as the files/ subtree, mirroring the original create_package helper.
func CreateFromDir(outputPath, sourceDir string, manifest Manifest) (*Archive, error) {
	var files []StagingFile
	if _, err := os.Stat(sourceDir); err == nil {
		err := filepath.Walk(sourceDir, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(sourceDir, p)
			if err != nil {
				return err
			}
			files = append(files, StagingFile{RelPath: filepath.ToSlash(rel), Source: p})
			return nil
		})
		if err != nil {
			return nil, rpgerrors.Wrap(rpgerrors.Io, err, "walking %s", sourceDir)
		}
	}
	return Create(outputPath, manifest, files)
}

// Extract unpacks the whole archive into dest.
func Extract(archivePath, dest string) error {
	return extract(archivePath, dest, "")
}

// ExtractFiles extracts only the files/ subtree into dest, used to
// populate a versioned install tree.
func ExtractFiles(archivePath, dest string) error {
	return extract(archivePath, dest, "files/")
}

func extract(archivePath, dest, onlyPrefix string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dest)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "opening %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return rpgerrors.Wrap(rpgerrors.Io, err, "decompressing %s", archivePath)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "reading %s", archivePath)
		}

		name := hdr.Name
		if onlyPrefix != "" {
			if !strings.HasPrefix(name, onlyPrefix) {
				continue
			}
			name = strings.TrimPrefix(name, onlyPrefix)
			if name == "" {
				continue
			}
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", filepath.Dir(target))
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", target)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return rpgerrors.Wrap(rpgerrors.Io, err, "extracting %s", target)
			}
			if err := out.Close(); err != nil {
				return rpgerrors.Wrap(rpgerrors.Io, err, "closing %s", target)
			}
		}
	}
	return nil
}

// ListFiles returns the manifest's declared files list.
func (a *Archive) ListFiles() ([]string, error) {
	manifest, err := a.Manifest()
	if err != nil {
		return nil, err
	}
	return manifest.Files, nil
}

// Manifest re-reads and returns the full manifest (not just the typed
// Metadata subset).
func (a *Archive) Manifest() (Manifest, error) {
	return readManifest(a.Path)
}

// VerifySignature reads the full archive bytes and verifies the manifest's
// embedded signature against them using the supplied base64 public key.
func (a *Archive) VerifySignature(publicKeyBase64 string) (bool, error) {
	verifier, err := signature.NewVerifierFromBase64(publicKeyBase64)
	if err != nil {
		return false, err
	}
	content, err := os.ReadFile(a.Path)
	if err != nil {
		return false, rpgerrors.Wrap(rpgerrors.Io, err, "reading %s", a.Path)
	}
	if err := verifier.Verify(content, a.Metadata.Signature); err != nil {
		return false, err
	}
	return true, nil
}
