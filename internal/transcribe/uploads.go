package transcribe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var allowedExtensions = map[string]bool{
	"mp3": true,
	"wav": true,
	"m4a": true,
	"ogg": true,
}

// Allowed reports whether filename carries one of the accepted audio
// extensions. The check is case-insensitive.
func Allowed(filename string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(filename[i+1:])]
}

// SanitizeFilename strips any directory part and reduces the name to ASCII
// letters, digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	clean := strings.TrimLeft(b.String(), "._")
	if clean == "" {
		return "upload"
	}
	return clean
}

// Uploads stores audio files under a directory.
type Uploads struct {
	dir string
}

// NewUploads creates dir if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Save writes r to a new file named after the sanitised filename and returns
// its path. A random prefix keeps concurrent uploads of the same name apart.
func (u *Uploads) Save(filename string, r io.Reader) (string, error) {
	const op = "transcribe.Uploads.Save"

	path := filepath.Join(u.dir, uuid.NewString()[:8]+"_"+SanitizeFilename(filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}
