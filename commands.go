package main

import (
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"
)

const defaultCommandTimeout = 2 * time.Second

// Command describes one request to the device and the response shape
// that completes it.
type Command struct {
	Name     string
	Raw      string
	Response *regexp.Regexp // nil = fire and forget
	Timeout  time.Duration
}

// Known device commands. CC1101 register access and message type
// switches follow the firmware's terse single letter grammar.
var (
	CmdVersion   = Command{Name: "version", Raw: "V", Response: regexp.MustCompile(`^V\s.*SIGNAL(?:duino|ESP)`), Timeout: 3 * time.Second}
	CmdPing      = Command{Name: "ping", Raw: "P", Response: regexp.MustCompile(`^OK$`)}
	CmdFreeRAM   = Command{Name: "freeram", Raw: "R", Response: regexp.MustCompile(`^[0-9]+$`)}
	CmdUptime    = Command{Name: "uptime", Raw: "t", Response: regexp.MustCompile(`^[0-9]+$`)}
	CmdConfig    = Command{Name: "config", Raw: "CG", Response: regexp.MustCompile(`^MS=[0-9];MU=[0-9];MC=[0-9]`)}
	CmdCCPatable = Command{Name: "patable", Raw: "C3E", Response: regexp.MustCompile(`^C3E\s=\s.*`)}
)

// SetFrequency formats the CC1101 frequency registers for the given
// MHz value (FREQ2/1/0, 26 MHz crystal).
func SetFrequency(mhz float64) Command {
	freq := int(mhz * 1000000 / 26000000 * 65536)
	raw := fmt.Sprintf("W0F%02X", (freq>>16)&0xFF)
	raw += fmt.Sprintf("W10%02X", (freq>>8)&0xFF)
	raw += fmt.Sprintf("W11%02X", freq&0xFF)
	return Command{Name: "set_frequency", Raw: raw}
}

// EnableMessageType / DisableMessageType toggle MS/MU/MC reporting.
func EnableMessageType(t string) Command {
	return Command{Name: "enable_" + t, Raw: "CE" + messageTypeLetter(t)}
}

func DisableMessageType(t string) Command {
	return Command{Name: "disable_" + t, Raw: "CD" + messageTypeLetter(t)}
}

func messageTypeLetter(t string) string {
	switch t {
	case "MS":
		return "S"
	case "MC":
		return "C"
	default:
		return "U"
	}
}

// pendingCommand tracks a command in flight.
type pendingCommand struct {
	command  Command
	deadline time.Time
	done     chan string
}

// CommandManager serializes commands to the device and correlates the
// response lines the firmware interleaves with frame traffic.
type CommandManager struct {
	transport *Transport

	mu      sync.Mutex
	pending *pendingCommand
}

// NewCommandManager creates a command manager over a transport.
func NewCommandManager(transport *Transport) *CommandManager {
	return &CommandManager{transport: transport}
}

// Send writes a command and, when it declares a response shape, waits
// for the matching line or the timeout.
func (cm *CommandManager) Send(cmd Command) (string, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = defaultCommandTimeout
	}

	cm.mu.Lock()
	if cm.pending != nil {
		cm.mu.Unlock()
		return "", fmt.Errorf("command %s: another command is pending", cmd.Name)
	}
	var pc *pendingCommand
	if cmd.Response != nil {
		pc = &pendingCommand{
			command:  cmd,
			deadline: time.Now().Add(timeout),
			done:     make(chan string, 1),
		}
		cm.pending = pc
	}
	cm.mu.Unlock()

	if err := cm.transport.WriteLine(cmd.Raw); err != nil {
		cm.clearPending(pc)
		return "", fmt.Errorf("command %s: %w", cmd.Name, err)
	}
	if pc == nil {
		return "", nil
	}

	select {
	case response := <-pc.done:
		return response, nil
	case <-time.After(timeout):
		cm.clearPending(pc)
		return "", fmt.Errorf("command %s: timeout after %v", cmd.Name, timeout)
	}
}

func (cm *CommandManager) clearPending(pc *pendingCommand) {
	cm.mu.Lock()
	if cm.pending == pc {
		cm.pending = nil
	}
	cm.mu.Unlock()
}

// HandleLine offers a non-frame line to the pending command. It
// reports whether the line was consumed as a command response.
func (cm *CommandManager) HandleLine(line string) bool {
	cm.mu.Lock()
	pc := cm.pending
	if pc == nil {
		cm.mu.Unlock()
		return false
	}
	if time.Now().After(pc.deadline) {
		cm.pending = nil
		cm.mu.Unlock()
		log.Printf("Commands: dropping stale pending command %s", pc.command.Name)
		return false
	}
	if !pc.command.Response.MatchString(line) {
		cm.mu.Unlock()
		return false
	}
	cm.pending = nil
	cm.mu.Unlock()

	pc.done <- line
	return true
}
