package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

const defaultLanguage = "eng"

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Engine runs the tesseract CLI over a single image.
type Engine struct {
	binary   string
	language string
	runner   CommandRunner
}

func NewEngine(binary string) *Engine {
	return NewEngineWithRunner(binary, execRunner{})
}

func NewEngineWithRunner(binary string, runner CommandRunner) *Engine {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	return &Engine{binary: binary, language: defaultLanguage, runner: runner}
}

// Recognize writes the image to a temp file and returns tesseract's text with
// whitespace collapsed.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", domain.WrapError(domain.ErrOCR, "ocr recognize", fmt.Errorf("empty image"))
	}

	tmp, err := os.CreateTemp("", "ocr-*.img")
	if err != nil {
		return "", domain.WrapError(domain.ErrOCR, "ocr temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", domain.WrapError(domain.ErrOCR, "ocr temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.WrapError(domain.ErrOCR, "ocr temp file", err)
	}

	out, err := e.runner.Run(ctx, e.binary, tmp.Name(), "stdout", "-l", e.language)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCR, "tesseract", err)
	}
	return CollapseWhitespace(string(out)), nil
}

// CollapseWhitespace squeezes runs of spaces inside a line and drops blank lines.
func CollapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

func meaningfulChars(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
