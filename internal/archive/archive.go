// Package archive exports and imports the message log as a tar.xz
// archive. Each message becomes one JSON file named by its hash, plus a
// manifest describing the export, so logs can be moved between instances
// or kept as backups.
package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/sortersocial/sorter/core/errors"
	"github.com/sortersocial/sorter/internal/store"
)

// Manifest is the manifest.json written at the head of every export.
type Manifest struct {
	Version    string `json:"version"`
	Messages   int    `json:"messages"`
	ExportedAt string `json:"exported_at"`
}

// ManifestVersion identifies the export layout.
const ManifestVersion = "1"

const manifestName = "manifest.json"

// Export writes every message in the store to a tar.xz archive at dstPath.
// Returns the number of messages written.
func Export(ctx context.Context, st *store.Store, dstPath string) (int, error) {
	msgs, err := st.All(ctx)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return 0, errors.NewIO("create directory", filepath.Dir(dstPath), err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return 0, errors.NewIO("create", dstPath, err)
	}
	defer out.Close()

	xzw, err := xz.NewWriter(out)
	if err != nil {
		return 0, errors.Wrap(err, "initializing xz writer")
	}
	tw := tar.NewWriter(xzw)

	now := time.Now().UTC()
	manifest := Manifest{
		Version:    ManifestVersion,
		Messages:   len(msgs),
		ExportedAt: now.Format(time.RFC3339),
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "encoding manifest")
	}
	if err := writeEntry(tw, manifestName, manifestData, now); err != nil {
		return 0, err
	}

	for _, msg := range msgs {
		data, err := json.MarshalIndent(msg, "", "  ")
		if err != nil {
			return 0, errors.Wrapf(err, "encoding message %s", msg.ID)
		}
		name := "messages/" + msg.Hash + ".json"
		if err := writeEntry(tw, name, data, now); err != nil {
			return 0, err
		}
	}

	if err := tw.Close(); err != nil {
		return 0, errors.Wrap(err, "finalizing tar")
	}
	if err := xzw.Close(); err != nil {
		return 0, errors.Wrap(err, "finalizing xz stream")
	}
	return len(msgs), nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	return nil
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Imported int
	Skipped  int // already present (same body hash)
}

// Import merges an exported archive into the store. Messages whose body is
// already recorded are skipped, so importing is idempotent. The original
// sender, subject and mail id are preserved; ids and timestamps are
// reassigned by the store.
func Import(ctx context.Context, st *store.Store, srcPath string) (ImportStats, error) {
	var stats ImportStats

	in, err := os.Open(srcPath)
	if err != nil {
		return stats, errors.NewIO("open", srcPath, err)
	}
	defer in.Close()

	xzr, err := xz.NewReader(in)
	if err != nil {
		return stats, errors.Wrap(err, "initializing xz reader")
	}
	tr := tar.NewReader(xzr)

	sawManifest := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.Wrap(err, "reading archive")
		}

		switch {
		case hdr.Name == manifestName:
			var manifest Manifest
			if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
				return stats, errors.Wrap(err, "decoding manifest")
			}
			if manifest.Version != ManifestVersion {
				return stats, errors.NewValidation("version",
					fmt.Sprintf("unsupported archive version %q", manifest.Version))
			}
			sawManifest = true

		case strings.HasPrefix(hdr.Name, "messages/") && strings.HasSuffix(hdr.Name, ".json"):
			var msg store.Message
			if err := json.NewDecoder(tr).Decode(&msg); err != nil {
				return stats, errors.Wrapf(err, "decoding %s", hdr.Name)
			}
			_, err := st.Save(ctx, msg.Sender, msg.Subject, msg.MailID, msg.Body)
			if errors.Is(err, errors.ErrAlreadyExists) {
				stats.Skipped++
				continue
			}
			if err != nil {
				return stats, err
			}
			stats.Imported++
		}
	}

	if !sawManifest {
		return stats, errors.NewValidation("manifest", "archive has no manifest.json")
	}
	return stats, nil
}
