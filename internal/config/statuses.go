package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/vporoshin/flowtime/internal/logging"
)

// StatusMapping classifies workflow statuses into the blocks the metric
// engine reasons about. Statuses are matched by their localized display name,
// which is what the history rows carry.
type StatusMapping struct {
	Discovery    map[string]bool
	Done         map[string]bool
	Pause        map[string]bool
	ExternalTest map[string]bool

	// ReadyForDev and InWork are single anchor statuses, not sets.
	ReadyForDev string
	InWork      string
}

// Production defaults for blocks the mapping file may omit. These match the
// workflow this tool was built against.
const (
	defaultDiscoveryStatus    = "Discovery backlog"
	defaultPauseStatus        = "Приостановлено"
	defaultExternalTestStatus = "МП / Внешний тест"
	defaultReadyForDevStatus  = "Готова к разработке"
	defaultInWorkStatus       = "МП / В работе"
)

// DefaultStatusMapping returns the mapping used when no file is provided.
// Done statuses have no sensible default; metrics that need them stay empty
// until a mapping file supplies the terminal statuses of the workflow.
func DefaultStatusMapping() *StatusMapping {
	return &StatusMapping{
		Discovery:    map[string]bool{defaultDiscoveryStatus: true},
		Done:         map[string]bool{},
		Pause:        map[string]bool{defaultPauseStatus: true},
		ExternalTest: map[string]bool{defaultExternalTestStatus: true},
		ReadyForDev:  defaultReadyForDevStatus,
		InWork:       defaultInWorkStatus,
	}
}

// LoadStatusMapping parses the status classification file. Lines look like
//
//	Discovery backlog;discovery
//	Готово;done
//	Приостановлено;pause
//
// Recognized blocks: discovery, done, pause, external_test, ready_for_dev,
// in_work. Unknown blocks and malformed lines are logged and skipped. Blocks
// absent from the file keep their production defaults.
func LoadStatusMapping(path string) (*StatusMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open status mapping file: %w", err)
	}
	defer f.Close()

	log := logging.WithComponent("config")
	m := &StatusMapping{
		Discovery:    map[string]bool{},
		Done:         map[string]bool{},
		Pause:        map[string]bool{},
		ExternalTest: map[string]bool{},
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping malformed status line")
			continue
		}
		status := strings.TrimSpace(parts[0])
		block := strings.ToLower(strings.TrimSpace(parts[1]))
		if status == "" {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping status line with empty status")
			continue
		}
		switch block {
		case "discovery":
			m.Discovery[status] = true
		case "done":
			m.Done[status] = true
		case "pause":
			m.Pause[status] = true
		case "external_test":
			m.ExternalTest[status] = true
		case "ready_for_dev":
			if m.ReadyForDev == "" {
				m.ReadyForDev = status
			} else {
				log.Warn().Str("status", status).Msg("extra ready_for_dev line ignored; anchor already set")
			}
		case "in_work":
			if m.InWork == "" {
				m.InWork = status
			} else {
				log.Warn().Str("status", status).Msg("extra in_work line ignored; anchor already set")
			}
		default:
			log.Warn().Str("file", path).Int("line", lineNo).Str("block", block).Msg("skipping unknown status block")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status mapping file: %w", err)
	}

	if len(m.Discovery) == 0 {
		m.Discovery[defaultDiscoveryStatus] = true
	}
	if len(m.Pause) == 0 {
		m.Pause[defaultPauseStatus] = true
	}
	if len(m.ExternalTest) == 0 {
		m.ExternalTest[defaultExternalTestStatus] = true
	}
	if m.ReadyForDev == "" {
		m.ReadyForDev = defaultReadyForDevStatus
	}
	if m.InWork == "" {
		m.InWork = defaultInWorkStatus
	}
	return m, nil
}

// IsPause reports whether the status display name is a pause status.
func (m *StatusMapping) IsPause(status string) bool { return m.Pause[status] }

// IsDone reports whether the status display name is a terminal status.
func (m *StatusMapping) IsDone(status string) bool { return m.Done[status] }

// IsDiscovery reports whether the status belongs to the discovery block.
func (m *StatusMapping) IsDiscovery(status string) bool { return m.Discovery[status] }

// IsExternalTest reports whether the status is an external-test status.
func (m *StatusMapping) IsExternalTest(status string) bool { return m.ExternalTest[status] }
