package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/SpatiumPortae/logportal/internal/logger"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	linkFlagDesc = `Link to the vehicle. Accepted formats:
  - serial:/dev/ttyUSB0
  - udpin:0.0.0.0:14550
  - udpout:127.0.0.1:14550
  - udpout:[::1]:14550
	`
	tuiStyleFlagDesc = "Style of the tui (rich|raw)"
)

// setupLoggingFromViper returns a logger writing to `.logportal-[cmd].log` in the
// current directory when verbose is set, and a no-op logger otherwise. The returned
// file is nil when nothing is logged.
func setupLoggingFromViper(cmd string) (*zap.Logger, *os.File, error) {
	if viper.GetBool("verbose") {
		f, err := tea.LogToFile(fmt.Sprintf(".logportal-%s.log", cmd), fmt.Sprintf("logportal-%s: ", cmd))
		if err != nil {
			return nil, nil, fmt.Errorf("could not log to the provided file: %w", err)
		}
		return logger.ToWriter(f), f, nil
	}
	log.SetOutput(io.Discard)
	return zap.NewNop(), nil, nil
}
