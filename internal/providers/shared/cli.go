package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/parsers"
)

const DefaultProbeTimeout = 15 * time.Second

// ProbeCommand is a provider CLI invocation that prints quota status.
type ProbeCommand struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) (string, error)

type CLISourceConfig struct {
	Command       ProbeCommand
	SessionWindow time.Duration
	WeekWindow    time.Duration
	Digest        *DigestAttacher
	Run           Runner
	Now           func() time.Time
}

// CLISource shells out to a provider's status command and parses whatever
// percentages and reset phrases it prints.
type CLISource struct {
	profile core.ProviderProfile
	cfg     CLISourceConfig
	now     func() time.Time
}

func NewCLISource(profile core.ProviderProfile, cfg CLISourceConfig) *CLISource {
	if cfg.Run == nil {
		cfg.Run = RunCommand
	}
	if cfg.Command.Timeout <= 0 {
		cfg.Command.Timeout = DefaultProbeTimeout
	}
	return &CLISource{profile: profile, cfg: cfg, now: Now(cfg.Now)}
}

func (s *CLISource) Profile() core.ProviderProfile { return s.profile }
func (s *CLISource) Name() string                  { return "cli" }

func (s *CLISource) Read(ctx context.Context) (core.Reading, error) {
	id := s.profile.ID
	cmd := s.cfg.Command
	if strings.TrimSpace(cmd.Binary) == "" {
		return Unavailable(id, core.SourceCLI, s.now(), "no status command configured"), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()
	out, err := s.cfg.Run(runCtx, cmd.Binary, cmd.Args...)
	now := s.now()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return core.Reading{}, ctx.Err()
		case errors.Is(err, exec.ErrNotFound):
			return Unavailable(id, core.SourceCLI, now, "%s binary not found in PATH", cmd.Binary), nil
		case runCtx.Err() != nil:
			return Unavailable(id, core.SourceCLI, now, "%s timed out after %s", cmd.Binary, cmd.Timeout), nil
		default:
			return Unavailable(id, core.SourceCLI, now, "%s failed: %s", cmd.Binary, TruncateForError(firstLine(out, err), 120)), nil
		}
	}

	res := parsers.ParseProbe(out, now)
	if res.Empty() {
		return Unavailable(id, core.SourceCLI, now, "%s printed no usage figures", cmd.Binary), nil
	}

	usage := core.UsagePulse{Provider: id, CapturedAt: now}
	var parts []string
	if res.SessionPercent != nil {
		usage.Session = core.Percent(*res.SessionPercent)
		usage.SessionWindow = &core.QuotaWindow{Duration: s.cfg.SessionWindow, ResetAt: res.SessionReset}
		parts = append(parts, fmt.Sprintf("session %.0f%%", usage.Session.Used))
	}
	if res.WeekPercent != nil {
		usage.Week = core.Percent(*res.WeekPercent)
		usage.WeekWindow = &core.QuotaWindow{Duration: s.cfg.WeekWindow, ResetAt: res.WeekReset}
		parts = append(parts, fmt.Sprintf("week %.0f%%", usage.Week.Used))
	}

	summary := strings.Join(parts, " · ") + " (cli)"
	r := core.NewReading(id, core.SourceCLI, core.ConfidenceLow, now, summary).WithUsage(usage)
	return s.cfg.Digest.Attach(ctx, r), nil
}

// RunCommand runs binary and returns stdout. Stderr is appended on error.
func RunCommand(ctx context.Context, binary string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String() + stderr.String(), err
	}
	return stdout.String(), nil
}

func firstLine(out string, err error) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return err.Error()
}
