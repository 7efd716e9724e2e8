package mail

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
)

const maxSuffix = 1000

// SaveResult tells where an attachment landed.
type SaveResult struct {
	MessageID string
	Path      string
	Reused    bool
}

// SaveAttachments writes attachments to <inbox>/<YYYY-MM>/<name>, by the month
// the message was received. A file with identical bytes already at the name, or
// at one of its suffixed variants, is reused. Other collisions get a _n suffix.
func SaveAttachments(inbox string, atts []Attachment, logger *slog.Logger) ([]SaveResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]SaveResult, 0, len(atts))
	for _, a := range atts {
		month := a.Received.UTC().Format("2006-01")
		if a.Received.IsZero() {
			month = "undated"
		}
		name := fsutil.SanitizeFilename(a.Filename)
		if filepath.Ext(name) == "" {
			name += ".pdf"
		}
		base := filepath.Join(inbox, month, name)

		path, reused, err := saveOne(base, a.Data)
		if err != nil {
			return out, fmt.Errorf("save %s from %s: %w", a.Filename, a.MessageID, err)
		}
		logger.Info("mail.attachment.saved", "message_id", a.MessageID, "path", path, "reused", reused, "bytes", len(a.Data))
		out = append(out, SaveResult{MessageID: a.MessageID, Path: path, Reused: reused})
	}
	return out, nil
}

func saveOne(base string, data []byte) (string, bool, error) {
	for n := 0; n <= maxSuffix; n++ {
		path := base
		if n > 0 {
			path = fsutil.SuffixedPath(base, n)
		}
		existing, err := os.ReadFile(path)
		switch {
		case err == nil:
			if bytes.Equal(existing, data) {
				return path, true, nil
			}
			continue
		case !errors.Is(err, os.ErrNotExist):
			return "", false, err
		}
		err = fsutil.WriteFileExclusive(path, data)
		if errors.Is(err, os.ErrExist) {
			n--
			continue
		}
		return path, false, err
	}
	return "", false, fmt.Errorf("no free name after %d attempts for %s", maxSuffix, base)
}
