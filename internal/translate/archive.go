package translate

import (
	"context"
	"fmt"

	"github.com/naughtychas/gitmc-core/pkg/files"
)

// ImportSave extracts a packaged save archive (zip, tar.gz, etc., any
// format archives.Identify recognizes) into destSaveRoot, ready for a
// subsequent Extract.
func ImportSave(ctx context.Context, archivePath, destSaveRoot string) error {
	if err := files.ExtractArchive(ctx, archivePath, destSaveRoot); err != nil {
		return fmt.Errorf("importing save archive: %w", err)
	}
	return nil
}

// ExportSave zips a rebuilt save directory for download or transfer.
func ExportSave(ctx context.Context, saveRoot, destArchivePath string) error {
	if err := files.CreateArchive(ctx, saveRoot, destArchivePath); err != nil {
		return fmt.Errorf("exporting save archive: %w", err)
	}
	return nil
}
