package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/STRATINT/alertwatch/internal/models"
)

// SpeechNotifier reads the core message aloud through an external
// text-to-speech command, e.g. ["espeak", "-v", "el"]. The message is passed
// as the last argument.
type SpeechNotifier struct {
	command []string
	logger  *slog.Logger
}

// NewSpeechNotifier creates a notifier for command. command must not be empty.
func NewSpeechNotifier(command []string, logger *slog.Logger) (*SpeechNotifier, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("speech command %q: %w", command[0], err)
	}
	return &SpeechNotifier{command: command, logger: logger}, nil
}

// Notify implements Notifier.
func (n *SpeechNotifier) Notify(ctx context.Context, alert models.Alert) error {
	args := append(append([]string{}, n.command[1:]...), alert.CoreMessage)
	cmd := exec.CommandContext(ctx, n.command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speech command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	n.logger.Debug("alert spoken", "id", alert.ID.String())
	return nil
}
