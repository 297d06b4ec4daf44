package devices

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"text/template"
	"time"

	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/process"
)

// DefaultApplyTimeout bounds a single reconfiguration command.
const DefaultApplyTimeout = 10 * time.Second

// CommandData is the template context for reconfiguration commands.
type CommandData struct {
	DeviceID     string
	DeviceName   string
	SampleRateHz string
	SampleRate   float64
	BitDepth     uint32
	Channels     uint32
	FormatTag    string
}

func newCommandData(dev Record, f format.Descriptor) CommandData {
	return CommandData{
		DeviceID:     dev.ID,
		DeviceName:   dev.Name,
		SampleRateHz: strconv.FormatFloat(f.SampleRateHz, 'f', -1, 64),
		SampleRate:   f.SampleRateHz,
		BitDepth:     f.BitDepth,
		Channels:     f.Channels,
		FormatTag:    f.Tag,
	}
}

// CommandPort reconfigures a device by running a templated command, e.g.
//
//	pw-metadata -n settings 0 clock.force-rate {{.SampleRateHz}}
//
// A non-zero exit or a timeout is a write failure.
type CommandPort struct {
	tmpl    *template.Template
	source  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandPort parses the command template.
func NewCommandPort(command string, timeout time.Duration) (*CommandPort, error) {
	tmpl, err := template.New("apply").Option("missingkey=error").Parse(command)
	if err != nil {
		return nil, NewError(ErrCodeInvalidCommand, "parse apply command", err)
	}
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	return &CommandPort{
		tmpl:    tmpl,
		source:  command,
		timeout: timeout,
		logger:  logging.GetLogger("devices"),
	}, nil
}

// Render returns the command that Apply would run.
func (p *CommandPort) Render(dev Record, f format.Descriptor) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, newCommandData(dev, f)); err != nil {
		return "", NewError(ErrCodeInvalidCommand, "render apply command", err)
	}
	return buf.String(), nil
}

// Apply runs the rendered command for dev.
func (p *CommandPort) Apply(ctx context.Context, dev Record, f format.Descriptor) error {
	command, err := p.Render(dev, f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("Running apply command", "device_id", dev.ID, "command", command)
	out, err := process.Output(ctx, command)
	if err != nil {
		return NewError(ErrCodeApplyFailed, "set "+f.String()+" on "+dev.ID, err)
	}
	if out != "" {
		p.logger.Debug("Apply command output", "device_id", dev.ID, "output", out)
	}
	return nil
}

// DryRunPort only logs the formats it would apply.
type DryRunPort struct {
	logger *slog.Logger
}

// NewDryRunPort creates a port that never touches hardware.
func NewDryRunPort() *DryRunPort {
	return &DryRunPort{logger: logging.GetLogger("devices")}
}

// Apply implements the reconfiguration port.
func (p *DryRunPort) Apply(_ context.Context, dev Record, f format.Descriptor) error {
	p.logger.Info("Dry run: would apply format", "device_id", dev.ID, "format", f.String())
	return nil
}

// Port is satisfied by CommandPort and DryRunPort.
type Port interface {
	Apply(ctx context.Context, dev Record, f format.Descriptor) error
}

// NewPort returns a CommandPort for command, or a DryRunPort when command is empty.
func NewPort(command string, timeout time.Duration) (Port, error) {
	if command == "" {
		return NewDryRunPort(), nil
	}
	return NewCommandPort(command, timeout)
}

// UnitRestarter restarts a service manager unit.
type UnitRestarter interface {
	RestartUnit(ctx context.Context, unit string) error
}

// RestartingPort restarts a player unit after every successful apply so that
// players holding the device open pick up the new format.
type RestartingPort struct {
	Port
	restarter UnitRestarter
	unit      string
	logger    *slog.Logger
}

// NewRestartingPort wraps port. An empty unit returns port unchanged.
func NewRestartingPort(port Port, restarter UnitRestarter, unit string) Port {
	if unit == "" || restarter == nil {
		return port
	}
	return &RestartingPort{Port: port, restarter: restarter, unit: unit, logger: logging.GetLogger("devices")}
}

// Apply applies f and then restarts the unit. A failed restart is reported
// as an apply failure.
func (p *RestartingPort) Apply(ctx context.Context, dev Record, f format.Descriptor) error {
	if err := p.Port.Apply(ctx, dev, f); err != nil {
		return err
	}
	if err := p.restarter.RestartUnit(ctx, p.unit); err != nil {
		return NewError(ErrCodeApplyFailed, "restart "+p.unit+" after applying "+f.String(), err)
	}
	p.logger.Info("Restarted player unit", "unit", p.unit, "device_id", dev.ID)
	return nil
}
