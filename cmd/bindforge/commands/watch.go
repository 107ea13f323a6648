package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/emit"
	"github.com/bindforge/bindforge/pkg/policy"
	"github.com/bindforge/bindforge/pkg/stores"
)

func newWatchCommand(version string) *cobra.Command {
	var (
		symbolsPath   string
		out           string
		format        string
		dotPath       string
		strict        bool
		allowWarnings bool
		noHistory     bool
		metricsAddr   string
		debounce      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <plan>",
		Short: "Regenerate whenever the plan or its inputs change",
		Long: `Watch generates once, then regenerates after every change to the plan files,
the symbol table, the naming hook or the configured lint policies. Saves that
leave the inputs byte-identical are ignored.`,
		Example: `  bindforge watch plan.cue --out build/model.json
  bindforge watch plan.cue --out build/model.json --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			planPath := args[0]

			s, err := openSession(ctx, version, sessionOptions{
				strict:        strict,
				noHistory:     noHistory,
				metricsListen: metricsAddr,
			})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(ctx) }()

			if !cmd.Flags().Changed("allow-warnings") {
				allowWarnings = s.cfg.Generate.AllowWarnings
			}
			if out == "" {
				out = s.cfg.Generate.Out
			}
			if !cmd.Flags().Changed("format") && s.cfg.Generate.Format != "" {
				format = s.cfg.Generate.Format
			}
			outFormat, err := emit.ParseFormat(format)
			if err != nil {
				return err
			}
			if out != "" && !cmd.Flags().Changed("format") {
				outFormat = emit.FormatForPath(out, outFormat)
			}

			if err := s.tel.Metrics.StartMetricsServer(ctx); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}

			policiesChanged := make(chan struct{}, 1)
			if s.policies != nil && len(s.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(s.tel.Logger.Zerolog())
				err := loader.Watch(ctx, s.cfg.Policy.Paths, func(ps []policy.Policy) error {
					if err := s.policies.ReplacePolicies(ctx, ps); err != nil {
						return err
					}
					select {
					case policiesChanged <- struct{}{}:
					default:
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer func() { _ = watcher.Close() }()

			w := &inputWatcher{watcher: watcher, files: map[string]bool{}, dirs: map[string]bool{}}

			var last *generation
			regenerate := func() {
				g := s.generate(ctx, planPath, symbolsPath, allowWarnings)
				last = g
				inputs := g.inputs
				if len(inputs) == 0 {
					inputs = []string{planPath}
				}
				w.track(inputs)

				if err := reportDiagnostics(cmd, g); err != nil {
					log.Error().Err(err).Send()
				}
				if g.err != nil {
					log.Error().Err(g.err).Str("run_id", g.runID).Msg("Generation failed, waiting for changes")
					return
				}
				if err := writeArtifacts(cmd, g, version, out, outFormat, dotPath); err != nil {
					log.Error().Err(err).Msg("Failed to write artifacts")
					return
				}
				log.Info().
					Str("run_id", g.runID).
					Int("resources", len(g.result.Model.Resources)).
					Msg("Generation succeeded, waiting for changes")
			}

			regenerate()

			var (
				timer     *time.Timer
				fired     = make(chan struct{}, 1)
				changed   string
				policyRun bool
			)
			schedule := func() {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fired <- struct{}{}:
					default:
					}
				})
			}
			defer func() {
				if timer != nil {
					timer.Stop()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					log.Info().Msg("Stopped watching")
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !w.watches(event.Name) {
						continue
					}
					log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Input changed")
					changed = event.Name
					schedule()

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("Watcher error")

				case <-policiesChanged:
					policyRun = true
					schedule()

				case <-fired:
					if !policyRun && last != nil && last.fingerprint != "" {
						if fp, err := stores.FingerprintFiles(last.inputs...); err == nil && fp == last.fingerprint {
							log.Debug().Str("file", changed).Msg("Inputs unchanged, skipping")
							continue
						}
					}
					if changed != "" {
						_ = s.tel.Events.PublishPlanChanged(changed)
					}
					changed, policyRun = "", false
					regenerate()
				}
			}
		},
	}

	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "symbol table path (overrides the plan)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&dotPath, "dot", "", "also write the ownership graph as DOT to this path")
	cmd.Flags().BoolVar(&strict, "strict", false, "make error-severity policy violations fatal")
	cmd.Flags().BoolVar(&allowWarnings, "allow-warnings", false, "do not reject the plan on warnings")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record runs in the history database")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before regenerating")

	return cmd
}

// inputWatcher tracks the files of the last run. Parent directories are watched
// so that editors replacing files on save are still seen.
type inputWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	dirs    map[string]bool
}

func (w *inputWatcher) track(paths []string) {
	clear(w.files)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs := absPath(p)
		w.files[abs] = true

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
			continue
		}
		w.dirs[dir] = true
	}
}

func (w *inputWatcher) watches(name string) bool {
	return w.files[absPath(name)]
}
