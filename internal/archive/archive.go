// Package archive unpacks ZIP invoice bundles and pulls reference fields out
// of the PDF documents inside them. Extraction is always followed by cleanup
// of the unpacked members, on every exit path, so one archive's leftovers
// never collide with the next one in a batch.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmorales/accounting-etl/internal/logger"
)

// Extractor works over a directory of .zip bundles and a scratch directory
// for extracted members.
type Extractor struct {
	archiveDir string
	extractDir string
}

// NewExtractor creates an Extractor rooted at the given directories.
func NewExtractor(archiveDir, extractDir string) *Extractor {
	return &Extractor{archiveDir: archiveDir, extractDir: extractDir}
}

// ListArchives returns the .zip file names (no paths) in the archive
// directory.
func (e *Extractor) ListArchives() ([]string, error) {
	entries, err := os.ReadDir(e.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("ListArchives: reading %q: %w", e.archiveDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".zip") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ReferenceField extracts the description column from the PDF inside the
// named archive. Multiple values are joined with " | "; a single value is
// returned as-is. ok is false when the archive has no PDF, the PDF has no
// description column, or anything fails along the way: a corrupt bundle must
// never abort the batch. Extracted members are removed before returning,
// regardless of outcome.
func (e *Extractor) ReferenceField(ctx context.Context, zipName string) (string, bool) {
	log := logger.FromContext(ctx)

	members, err := e.extractAll(filepath.Join(e.archiveDir, zipName))
	defer e.removeExtracted(ctx, members)
	if err != nil {
		log.Error().Err(err).Str("archive", zipName).Msg("Could not extract archive")
		return "", false
	}

	pdfMember := firstPDF(members)
	if pdfMember == "" {
		log.Warn().Str("archive", zipName).Msg("No PDF document inside archive")
		return "", false
	}

	values, err := descriptionColumn(filepath.Join(e.extractDir, pdfMember))
	if err != nil {
		log.Error().Err(err).Str("archive", zipName).Str("pdf", pdfMember).Msg("Error reading PDF")
		return "", false
	}
	if len(values) == 0 {
		log.Warn().Str("archive", zipName).Str("pdf", pdfMember).Msg("No description found in PDF")
		return "", false
	}
	return joinValues(values), true
}

// joinValues renders the extracted description cells: a single value is
// returned as-is, multiple values are joined with a literal " | ".
func joinValues(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	return strings.Join(values, " | ")
}

// RenameToInvoiceNumber renames every archive in the directory after the
// invoice number found in its embedded PDF. Archives whose PDF yields no
// number are left untouched. Returns the number of archives renamed.
func (e *Extractor) RenameToInvoiceNumber(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	zips, err := e.ListArchives()
	if err != nil {
		return 0, err
	}
	if len(zips) == 0 {
		log.Info().Str("dir", e.archiveDir).Msg("No zip files found in the directory")
		return 0, nil
	}
	log.Info().Int("count", len(zips)).Msg("Found zip files to rename")

	renamed := 0
	for _, zipName := range zips {
		zipPath := filepath.Join(e.archiveDir, zipName)
		members, err := e.extractAll(zipPath)
		if err != nil {
			log.Error().Err(err).Str("archive", zipName).Msg("Could not extract archive")
			e.removeExtracted(ctx, members)
			continue
		}

		newName := ""
		for _, member := range members {
			if !strings.EqualFold(filepath.Ext(member), ".pdf") {
				continue
			}
			number, err := invoiceNumber(filepath.Join(e.extractDir, member))
			if err != nil {
				log.Error().Err(err).Str("pdf", member).Msg("Error reading PDF")
				continue
			}
			if number != "" {
				newName = number
				break
			}
		}
		e.removeExtracted(ctx, members)

		if newName == "" {
			log.Warn().Str("archive", zipName).Msg("No valid invoice number found, file not renamed")
			continue
		}
		target := filepath.Join(e.archiveDir, newName+".zip")
		if err := os.Rename(zipPath, target); err != nil {
			log.Error().Err(err).Str("archive", zipName).Str("target", target).Msg("Could not rename archive")
			continue
		}
		log.Info().Str("from", zipName).Str("to", newName+".zip").Msg("Renamed archive")
		renamed++
	}
	return renamed, nil
}

// extractAll unpacks the archive into the extract directory and returns the
// member names written so far. On error the partial member list is still
// returned so the caller's cleanup can remove what did land on disk.
func (e *Extractor) extractAll(zipPath string) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("extractAll: opening %q: %w", zipPath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(e.extractDir, 0o755); err != nil {
		return nil, fmt.Errorf("extractAll: creating %q: %w", e.extractDir, err)
	}

	var written []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(e.extractDir, member.Name)
		// Refuse member names escaping the extract directory.
		if rel, err := filepath.Rel(e.extractDir, target); err != nil || strings.HasPrefix(rel, "..") {
			return written, fmt.Errorf("extractAll: member %q escapes extract dir", member.Name)
		}
		if err := writeMember(member, target); err != nil {
			return written, fmt.Errorf("extractAll: %w", err)
		}
		written = append(written, member.Name)
	}
	return written, nil
}

func writeMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating dir for %q: %w", member.Name, err)
	}
	src, err := member.Open()
	if err != nil {
		return fmt.Errorf("opening member %q: %w", member.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %q: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("writing %q: %w", target, err)
	}
	return nil
}

// removeExtracted deletes the extracted member files and any subdirectories
// left empty by their removal. Failures are logged, never propagated.
func (e *Extractor) removeExtracted(ctx context.Context, members []string) {
	log := logger.FromContext(ctx)

	dirs := map[string]bool{}
	for _, member := range members {
		path := filepath.Join(e.extractDir, member)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Could not remove extracted file")
		}
		for dir := filepath.Dir(member); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
			dirs[dir] = true
		}
	}

	// Deepest directories first so empty trees collapse.
	sorted := make([]string, 0, len(dirs))
	for dir := range dirs {
		sorted = append(sorted, dir)
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, dir := range sorted {
		// Fails when non-empty, which is fine.
		_ = os.Remove(filepath.Join(e.extractDir, dir))
	}
}

func firstPDF(members []string) string {
	for _, member := range members {
		if strings.EqualFold(filepath.Ext(member), ".pdf") {
			return member
		}
	}
	return ""
}
