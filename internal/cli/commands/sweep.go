package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapcalc/internal/casestudy"
	"github.com/leapstack-labs/leapcalc/internal/cli/output"
	"github.com/leapstack-labs/leapcalc/internal/metrics"
	"github.com/leapstack-labs/leapcalc/internal/model"
	"github.com/leapstack-labs/leapcalc/internal/report"
	"github.com/leapstack-labs/leapcalc/internal/scenario"
	"github.com/leapstack-labs/leapcalc/internal/snapshot"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
)

var (
	errNoSweepParams   = errors.New("at least one --param is required")
	errNothingSelected = errors.New("no result matches --select")
	errSweepAborted    = errors.New("case study aborted after a failed case")
)

type sweepOptions struct {
	params      []string
	sets        []string
	selectGlob  string
	name        string
	stopOnFail  bool
	xlsx        string
	snapshot    string
	metricsAddr string
	locale      string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand() *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parametric case study",
		Long: `Calculate every combination of the given parameter ranges, starting from
the calculated active scenario, and tabulate the results.

A range is written path:min:max with optional trailing fields:
  :N      number of points (default from sweep.default_steps)
  :+STEP  increment between points, the last step may be shorter
  :log    logarithmic spacing; +STEP is then a factor

Values without a unit take the unit of the parameter. Ctrl-C stops the sweep
after the running case and reports the rows collected so far.`,
		Example: `  # 5 widths times 3 heights
  leapcalc sweep --param a:1cm:5cm --param b:1:3:3

  # Logarithmic range, only the area
  leapcalc sweep --param a:1mm:1m:7:log --select A

  # Export and expose progress to Prometheus
  leapcalc sweep --param Tank.volume:100L:300L:+50L --xlsx sweep.xlsx --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSweep(ctx, NewCommandContext(cmd), opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "Parameter range (path:min:max[:N|:+STEP][:log])")
	cmd.Flags().StringArrayVarP(&opts.sets, "set", "s", nil, "Set a parameter before calculating (path=value)")
	cmd.Flags().StringVar(&opts.selectGlob, "select", "", "Glob of result paths to report (default: configured results)")
	cmd.Flags().StringVar(&opts.name, "name", "case study", "Name of the case study")
	cmd.Flags().BoolVar(&opts.stopOnFail, "stop-on-fail", false, "Abort on the first failed case")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "Export the table to an Excel workbook")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Write all scenarios to a snapshot file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the sweep")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "Locale for number formatting, e.g. de or en-US")

	return cmd
}

func runSweep(ctx context.Context, cc *CommandContext, opts sweepOptions) error {
	if len(opts.params) == 0 {
		return errNoSweepParams
	}
	numbers := report.NewNumbers(report.DefaultDigits, language.Und)
	if opts.locale != "" {
		tag, err := language.Parse(opts.locale)
		if err != nil {
			return fmt.Errorf("invalid --locale %q: %w", opts.locale, err)
		}
		numbers = report.NewNumbers(report.DefaultDigits, tag)
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var modelOpts []model.Option
	if opts.metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		rec, err := metrics.NewRecorder(promReg)
		if err != nil {
			return err
		}
		modelOpts = append(modelOpts, model.WithMetrics(rec))
		srv := metrics.NewServer(opts.metricsAddr, promReg, cc.Logger)
		g.Go(func() error { return srv.Run(serverCtx) })
	}

	var rep *casestudy.Report
	g.Go(func() error {
		defer stopServer()
		var err error
		rep, err = sweep(gctx, cc, opts, modelOpts)
		return err
	})
	sweepErr := g.Wait()
	if rep == nil {
		return sweepErr
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(newReportJSON(rep)); err != nil {
			return err
		}
	} else {
		report.NewRenderer(r.Writer(), r.ReportFormat(), report.WithNumbers(numbers)).CaseStudy(rep)
	}
	if opts.xlsx != "" {
		if err := report.SaveWorkbook(opts.xlsx, rep); err != nil {
			return err
		}
		r.Success("Exported " + opts.xlsx)
	}
	return sweepErr
}

// sweep runs the case study and returns its report. A report is returned
// together with errSweepAborted when the sweep stopped on a failure.
func sweep(ctx context.Context, cc *CommandContext, opts sweepOptions, modelOpts []model.Option) (*casestudy.Report, error) {
	r := cc.Renderer
	m, errs, err := cc.LoadModel(ctx, modelOpts...)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	cc.warnConfigErrors(errs)

	if err := applyAssignments(m, cc.Registry, opts.sets); err != nil {
		return nil, err
	}
	if err := cc.calculate(ctx, m); err != nil {
		return nil, err
	}
	conv, err := m.Scenario(scenario.Converged)
	if err != nil {
		return nil, err
	}

	var csOpts []casestudy.Option
	if opts.stopOnFail {
		csOpts = append(csOpts, casestudy.WithContinueOnFailure(false))
	}
	cs, err := m.DefineCaseStudy(csOpts...)
	if err != nil {
		return nil, err
	}
	for _, p := range opts.params {
		spec, err := parseSweepParam(cc.Registry, p, conv.Parameters, cc.Cfg.Sweep.DefaultSteps)
		if err != nil {
			return nil, err
		}
		if err := cs.AddParameter(spec); err != nil {
			return nil, fmt.Errorf("--param %s: %w", p, err)
		}
	}
	interesting, err := interestingResults(cc, cs.ResultPaths(), opts.selectGlob)
	if err != nil {
		return nil, err
	}

	sw, err := cs.Run(ctx)
	if err != nil {
		return nil, err
	}
	if r.EffectiveMode() != output.ModeJSON {
		r.Header(2, fmt.Sprintf("Running %d cases", sw.Total()))
	}
	for ev := range sw.Events() {
		name := fmt.Sprintf("case %d/%d", ev.Index, ev.Total)
		switch {
		case r.EffectiveMode() == output.ModeJSON:
		case ev.Kind == casestudy.EventFailed:
			r.StatusLine(name, "failed", ev.Message)
		case cc.Cfg.Verbose:
			r.StatusLine(name, "success", "")
		}
	}
	results, outcome := sw.Wait()
	rep := results.Collect(opts.name, interesting)

	if opts.snapshot != "" {
		if err := snapshot.Save(opts.snapshot, m.Serialize()); err != nil {
			return rep, err
		}
	}

	switch outcome {
	case casestudy.Interrupted:
		r.Warning(fmt.Sprintf("Interrupted after %d of %d cases", results.Len(), sw.Total()))
	case casestudy.Aborted:
		return rep, errSweepAborted
	}
	return rep, nil
}

// interestingResults resolves --select against the available result paths.
// Without a glob the configured results are used, or all results when none
// are configured.
func interestingResults(cc *CommandContext, available []core.Path, glob string) ([]core.Path, error) {
	if glob == "" {
		var paths []core.Path
		for _, item := range cc.Cfg.Results {
			paths = append(paths, core.Path(item.Path))
		}
		return paths, nil
	}
	filter, err := core.NewPathFilter(glob)
	if err != nil {
		return nil, fmt.Errorf("invalid --select: %w", err)
	}
	paths := filter.Filter(available)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", errNothingSelected, glob)
	}
	return paths, nil
}

// parseSweepParam parses path:min:max[:N|:+STEP][:log]. Bare numbers take
// the unit of the parameter's value in params.
func parseSweepParam(reg *units.Registry, s string, params *core.Structure, defaultSteps int) (*casestudy.ParameterSpec, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 3 || len(fields) > 5 {
		return nil, fmt.Errorf("invalid --param %q: want path:min:max[:N|:+STEP][:log]", s)
	}
	path := core.ParsePath(strings.TrimSpace(fields[0]))
	current, err := params.Quantity(path)
	if err != nil {
		return nil, fmt.Errorf("--param %s: %w", fields[0], err)
	}
	lo, err := parseValue(reg, fields[1], current)
	if err != nil {
		return nil, fmt.Errorf("--param %s min: %w", fields[0], err)
	}
	hi, err := parseValue(reg, fields[2], current)
	if err != nil {
		return nil, fmt.Errorf("--param %s max: %w", fields[0], err)
	}

	extra := fields[3:]
	var specOpts []casestudy.SpecOption
	logarithmic := false
	if n := len(extra); n > 0 && strings.TrimSpace(extra[n-1]) == "log" {
		logarithmic = true
		extra = extra[:n-1]
		specOpts = append(specOpts, casestudy.Logarithmic())
	}
	switch len(extra) {
	case 0:
		if defaultSteps > 0 {
			specOpts = append(specOpts, casestudy.WithCount(defaultSteps))
		}
	case 1:
		opt, err := parseStep(reg, strings.TrimSpace(extra[0]), lo, logarithmic)
		if err != nil {
			return nil, fmt.Errorf("--param %s: %w", fields[0], err)
		}
		specOpts = append(specOpts, opt)
	default:
		return nil, fmt.Errorf("invalid --param %q: want path:min:max[:N|:+STEP][:log]", s)
	}
	return casestudy.NewParameterSpec(path, lo, hi, specOpts...)
}

func parseStep(reg *units.Registry, s string, lo units.Quantity, logarithmic bool) (casestudy.SpecOption, error) {
	incr, ok := strings.CutPrefix(s, "+")
	if !ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid number of points %q", s)
		}
		return casestudy.WithCount(n), nil
	}
	if logarithmic {
		q, err := reg.ParseQuantity(incr)
		if err != nil {
			return nil, err
		}
		return casestudy.WithIncrement(q), nil
	}
	q, err := parseValue(reg, incr, lo)
	if err != nil {
		return nil, err
	}
	return casestudy.WithIncrement(q), nil
}

type columnJSON struct {
	Path      string `json:"path"`
	Unit      string `json:"unit"`
	Parameter bool   `json:"parameter"`
}

type reportJSON struct {
	Name    string       `json:"name"`
	Columns []columnJSON `json:"columns"`
	Rows    [][]*float64 `json:"rows"`
}

// newReportJSON converts rep for JSON output; NaN cells become null.
func newReportJSON(rep *casestudy.Report) reportJSON {
	out := reportJSON{Name: rep.Name, Columns: []columnJSON{}, Rows: [][]*float64{}}
	for _, c := range rep.Columns {
		out.Columns = append(out.Columns, columnJSON{Path: c.Path.String(), Unit: c.Unit.String(), Parameter: c.Parameter})
	}
	for _, row := range rep.Rows {
		cells := make([]*float64, len(row))
		for i, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				cells[i] = &v
			}
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}
