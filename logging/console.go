package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type consolePublisher struct {
	logger *log.Logger
	now    func() time.Time
}

// NewConsolePublisher writes one line per event to w using the standard
// logger layout.
func NewConsolePublisher(w io.Writer) Publisher {
	return &consolePublisher{
		logger: log.New(w, "", log.LstdFlags),
		now:    time.Now,
	}
}

func (p *consolePublisher) Publish(_ context.Context, event Event) {
	if p.logger == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = p.now()
	}
	p.logger.Printf("[%s] actor=%s severity=%s%s%s",
		event.Type, formatEntity(event.Actor), formatSeverity(event.Severity),
		formatTargets(event.Targets), formatPayload(event.Payload))
}

func formatSeverity(sev Severity) string {
	switch sev {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func formatEntity(ref EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
