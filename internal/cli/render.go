package cli

import (
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"

	"github.com/mikaelsundell/jobqueue/internal/events"
	"github.com/mikaelsundell/jobqueue/internal/job"
)

// Status colors, in the same spirit as a terminal UI's semantic palette:
// green for a clean finish, red for failure, yellow for anything left
// hanging off a failure, gray for a deliberate pause.
const (
	colorWaiting    = "245"
	colorRunning    = "45"
	colorCompleted  = "42"
	colorFailed     = "203"
	colorDependency = "214"
	colorStopped    = "240"
)

var statusStyles = map[job.Status]lipgloss.Style{
	job.StatusWaiting:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorWaiting)),
	job.StatusRunning:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRunning)),
	job.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorCompleted)),
	job.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorFailed)),
	job.StatusDependency: lipgloss.NewStyle().Foreground(lipgloss.Color(colorDependency)),
	job.StatusStopped:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorStopped)),
}

func renderStatus(s job.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return s.String()
	}
	return style.Render(s.String())
}

// newLogger returns the CLI's terminal-facing logger, distinct from the
// queue's log/slog output: this one renders the event stream a human is
// watching, the other is the queue's own operational log.
func newLogger() *charmlog.Logger {
	return charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
}

// renderEvent prints one line per event to logger, in the terminal style of
// a job monitor: submitted and processed are informational, a status
// field-change is rendered with its destination status colorized.
func renderEvent(logger *charmlog.Logger, ev events.Event, uuidToName func(ev events.Event) string) {
	name := uuidToName(ev)

	switch ev.Kind {
	case events.KindSubmitted:
		logger.Info("submitted", "job", name, "uuid", ev.UUID.String())
	case events.KindProcessed:
		logger.Info("processed", "job", name, "uuid", ev.UUID.String())
	case events.KindRemoved:
		logger.Info("removed", "job", name, "uuid", ev.UUID.String())
	case events.KindFieldChanged:
		if ev.Field != events.FieldStatus {
			return
		}
		status, ok := ev.Value.(job.Status)
		if !ok {
			return
		}
		logger.Info(fmt.Sprintf("status -> %s", renderStatus(status)), "job", name, "uuid", ev.UUID.String())
	}
}
