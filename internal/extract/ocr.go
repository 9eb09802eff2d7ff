package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// Tesseract shells out to the tesseract binary. The process emits raw bytes
// on stdout which are decoded explicitly by DecodeOCROutput; they are never
// assumed to be clean UTF-8.
type Tesseract struct {
	exe string
}

func NewTesseract(exe string) *Tesseract {
	if exe == "" {
		exe = "tesseract"
	}
	return &Tesseract{exe: exe}
}

func (t *Tesseract) Available() bool {
	return exec.Command(t.exe, "--version").Run() == nil
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string, lang string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.exe, imagePath, "stdout", "--psm", "6", "-l", lang)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("tesseract: %w (%s)", err, firstLine(stderr.String()))
		}
		// partial output with a nonzero exit is still usable
	}
	return stdout.Bytes(), nil
}

// DecodeOCROutput turns raw OCR process output into text: invalid UTF-8
// byte sequences are dropped rather than erroring, and engine chatter lines
// are stripped.
func DecodeOCROutput(raw []byte) string {
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = strings.ReplaceAll(text, "\f", "\n")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isChatterLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isChatterLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{
		"Estimating resolution",
		"Warning:",
		"Error:",
		"Tesseract Open Source",
		"Detected ",
	} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
