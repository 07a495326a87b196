package recon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/torrecon/internal/executor"
	"github.com/nao1215/torrecon/internal/model"
)

// ErrNoTargets is returned when Run is called without targets.
var ErrNoTargets = errors.New("no targets to scan")

// Rotator requests a new Tor circuit.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// IdentitySource reports the current egress identity.
type IdentitySource interface {
	Current(ctx context.Context) model.Identity
}

// Executor runs one command under the proxy launcher.
type Executor interface {
	Execute(ctx context.Context, base []string) executor.Outcome
}

// Coordinator runs the selected modules against each target in turn.
type Coordinator struct {
	profile  model.ScanProfile
	modules  []model.Module
	exec     Executor
	identity IdentitySource
	rotator  Rotator
	sampling model.IdentitySampling
	proxy    *model.ProxyInfo
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithClock replaces time.Now for the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithSampling selects when record identities are taken. The default is
// model.SampleAfter.
func WithSampling(s model.IdentitySampling) Option {
	return func(c *Coordinator) {
		c.sampling = s
	}
}

// WithProxyInfo stores the proxy endpoints in every report.
func WithProxyInfo(p *model.ProxyInfo) Option {
	return func(c *Coordinator) {
		c.proxy = p
	}
}

// New creates a Coordinator. rotator is only called when the profile asks
// for rotation per target, and may be nil otherwise.
func New(
	profile model.ScanProfile,
	modules []model.Module,
	exec Executor,
	identity IdentitySource,
	rotator Rotator,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		profile:  profile,
		modules:  modules,
		exec:     exec,
		identity: identity,
		rotator:  rotator,
		sampling: model.SampleAfter,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunTarget scans a single target. The report carries the target name.
func (c *Coordinator) RunTarget(ctx context.Context, target string) (*model.RunReport, error) {
	report := c.newReport()
	report.Target = target
	return report, c.run(ctx, report, []string{target})
}

// RunCampaign scans every target in order and names the report after the
// campaign.
func (c *Coordinator) RunCampaign(ctx context.Context, targets []string) (*model.RunReport, error) {
	report := c.newReport()
	return report, c.run(ctx, report, targets)
}

func (c *Coordinator) newReport() *model.RunReport {
	report := model.NewRunReport(c.profile.Name, c.now())
	report.Proxy = c.proxy
	report.IdentitySampling = c.sampling
	return report
}

// run appends records to report. On cancellation it stops before the next
// step and returns ctx.Err(); report keeps everything recorded so far.
func (c *Coordinator) run(ctx context.Context, report *model.RunReport, targets []string) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.logger.Info("processing target",
			"target", target,
			"index", i+1,
			"total", len(targets),
			"run_id", report.RunID,
		)

		rotated, rotationErr := c.rotate(ctx, target)
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, module := range c.modules {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := c.runModule(ctx, target, module)
			rec.Rotated = rotated
			rec.RotationError = rotationErr
			rec.Seal()
			report.Append(rec)
		}
	}
	return nil
}

// rotate requests a new circuit when the profile asks for it. Failures
// are returned as text for the records and never stop the run.
func (c *Coordinator) rotate(ctx context.Context, target string) (bool, string) {
	if !c.profile.RotatePerTarget {
		return false, ""
	}
	if c.rotator == nil {
		return false, "no circuit rotator configured"
	}
	if err := c.rotator.Rotate(ctx); err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("circuit rotation failed, continuing on current circuit",
				"target", target, "error", err)
		}
		return false, err.Error()
	}
	return true, ""
}

func (c *Coordinator) runModule(ctx context.Context, target string, module model.Module) model.ExecutionRecord {
	base := BuildCommand(c.profile, module, target)
	out := c.exec.Execute(ctx, base)

	id := out.Identity
	if c.sampling == model.SampleAfter {
		id = c.identity.Current(ctx)
	}
	if id.Label == "" {
		id = model.UnknownIdentity
	}

	rec := model.ExecutionRecord{
		Target:     target,
		Module:     module,
		Tool:       module.Tool(),
		Command:    out.Command,
		Identity:   id,
		StartedAt:  out.StartedAt.UTC(),
		DurationMS: out.Duration.Milliseconds(),
	}
	applyOutcome(&rec, out)

	c.logger.Info("module finished",
		"target", target,
		"module", module.String(),
		"status", rec.Status.String(),
		"identity", id.String(),
	)
	return rec
}
