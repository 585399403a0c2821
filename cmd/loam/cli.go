package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/evergreen-lab/loam/internal/compact"
	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
	"github.com/evergreen-lab/loam/internal/factors"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/session"
	"github.com/evergreen-lab/loam/internal/store"
	"github.com/evergreen-lab/loam/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *store.Store, cfg *config.Config, tracker *metrics.Tracker) *cli.App {
	app := &cli.App{
		Name:    "loam",
		Usage:   "Memory and context store for conversational assistants",
		Version: Version,
		Commands: []*cli.Command{
			profileCmd(st, tracker),
			recordCmd(st, tracker),
			historyCmd(st),
			estimateCmd(),
			rememberCmd(st),
			recallCmd(st),
			habitCmd(st),
			streakCmd(st),
			compactCmd(cfg),
			contextCmd(st, cfg),
			impactCmd(tracker),
			webCmd(st, cfg, tracker),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// profileCmd creates the profile command with its save/get/patch subcommands.
func profileCmd(st *store.Store, tracker *metrics.Tracker) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage lifestyle profiles",
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Save a profile (reads profile JSON from stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Usage: "Identity key (overrides the JSON body)"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("profile JSON must be piped via stdin"))
					}
					body, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}

					var p entity.Profile
					if err := json.Unmarshal([]byte(body), &p); err != nil {
						return outputError(errors.NewInvalidRequest("invalid profile JSON: " + err.Error()))
					}
					if identity := c.String("identity"); identity != "" {
						p.Identity = identity
					}

					existed := false
					if p.Identity != "" {
						_, found, err := st.GetProfile(p.Identity)
						if err != nil {
							return outputError(err)
						}
						existed = found
					}

					if err := st.SaveProfile(&p); err != nil {
						return outputError(err)
					}
					if tracker != nil && !existed {
						tracker.RecordProfileCreated(p.Identity, p.City)
					}

					return outputJSON(p)
				},
			},
			{
				Name:      "get",
				Usage:     "Get a profile by identity",
				ArgsUsage: "<identity>",
				Action: func(c *cli.Context) error {
					identity := c.Args().First()
					p, found, err := st.GetProfile(identity)
					if err != nil {
						return outputError(err)
					}
					if !found {
						return outputError(errors.NewNotFound(identity))
					}
					return outputJSON(p)
				},
			},
			{
				Name:      "patch",
				Usage:     "Patch profile fields (reads a fields JSON object from stdin)",
				ArgsUsage: "<identity>",
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("fields JSON must be piped via stdin"))
					}
					body, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}

					var fields map[string]any
					if err := json.Unmarshal([]byte(body), &fields); err != nil {
						return outputError(errors.NewInvalidRequest("invalid fields JSON: " + err.Error()))
					}

					p, err := st.PatchProfile(c.Args().First(), fields)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(p)
				},
			},
		},
	}
}

// recordCmd creates the record command.
func recordCmd(st *store.Store, tracker *metrics.Tracker) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Append a footprint measurement",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Required: true, Usage: "Activity category (transport, food, energy, ...)"},
			&cli.StringFlag{Name: "activity", Aliases: []string{"a"}, Required: true, Usage: "Activity description"},
			&cli.Float64Flag{Name: "kg", Required: true, Usage: "Magnitude in kg CO2e (negative = avoided emissions)"},
			&cli.StringFlag{Name: "details", Usage: "Details JSON object"},
		},
		Action: func(c *cli.Context) error {
			var details map[string]any
			if raw := c.String("details"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &details); err != nil {
					return outputError(errors.NewInvalidRequest("invalid details JSON: " + err.Error()))
				}
			}

			rec, err := st.AppendMeasurement(c.String("identity"), c.String("category"), c.String("activity"), c.Float64("kg"), details)
			if err != nil {
				return outputError(err)
			}
			if tracker != nil && rec.Magnitude < 0 {
				tracker.RecordCO2Saved(rec.Identity, -rec.Magnitude, rec.Category, rec.Activity)
			}

			return outputJSON(rec)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Summarize an identity's footprint history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.IntFlag{Name: "lookback", Aliases: []string{"l"}, Value: 0, Usage: "Only include records from the last N days (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			history, err := st.MeasurementHistory(c.String("identity"), c.String("category"), c.Int("lookback"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(history)
		},
	}
}

// estimateCmd creates the estimate command.
func estimateCmd() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate kg CO2e for an activity from the cached factor table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Required: true, Usage: "Factor category: food|transport|flights|energy"},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Required: true, Usage: "Activity key (e.g. beef, car_petrol)"},
			&cli.Float64Flag{Name: "amount", Required: true, Usage: "Amount in the factor's unit (kg, km, kWh, m3)"},
			&cli.StringFlag{Name: "region", Aliases: []string{"r"}, Usage: "Grid region for electricity estimates"},
		},
		Action: func(c *cli.Context) error {
			category := c.String("category")
			key := c.String("key")
			kg, ok := factors.Estimate(category, key, c.Float64("amount"), c.String("region"))
			if !ok {
				known := factors.Keys(category)
				if known == nil {
					return outputError(errors.NewInvalidRequest("unknown category: " + category))
				}
				return outputError(errors.NewInvalidRequest(
					fmt.Sprintf("unknown %s key %q (known: %s)", category, key, strings.Join(known, ", "))))
			}
			return outputJSON(map[string]any{
				"category": category,
				"key":      key,
				"amount":   c.Float64("amount"),
				"kg_co2":   kg,
			})
		},
	}
}

// rememberCmd creates the remember command.
func rememberCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "remember",
		Usage:     "Append a free-text memory entry",
		ArgsUsage: "<content>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Value: entity.CategoryConversation, Usage: "Memory category"},
			&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Originating application tag"},
		},
		Action: func(c *cli.Context) error {
			content := strings.Join(c.Args().Slice(), " ")
			if content == "" && stdinHasData() {
				var err error
				content, err = readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			entry, err := st.AddMemory(c.String("identity"), c.String("namespace"), content, c.String("category"), nil)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(entry)
		},
	}
}

// recallCmd creates the recall command.
func recallCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "recall",
		Usage:     "Search memory entries by keyword",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: store.DefaultSearchLimit, Usage: "Maximum results"},
		},
		Action: func(c *cli.Context) error {
			results, err := st.Search(store.SearchInput{
				Identity: c.String("identity"),
				Query:    strings.Join(c.Args().Slice(), " "),
				Category: c.String("category"),
				Limit:    c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"results": results,
				"count":   len(results),
			})
		},
	}
}

// habitCmd creates the habit command.
func habitCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "habit",
		Usage:     "Record a habit completion or miss",
		ArgsUsage: "<habit>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
			&cli.BoolFlag{Name: "missed", Usage: "Record a miss instead of a completion"},
		},
		Action: func(c *cli.Context) error {
			habit := strings.Join(c.Args().Slice(), " ")
			if err := st.RecordHabit(c.String("identity"), habit, !c.Bool("missed")); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"habit":     habit,
				"completed": !c.Bool("missed"),
			})
		},
	}
}

// streakCmd creates the streak command.
func streakCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "streak",
		Usage:     "Summarize an identity's habit completion rate",
		ArgsUsage: "<habit>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
		},
		Action: func(c *cli.Context) error {
			streak, err := st.HabitStreak(c.String("identity"), strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(streak)
		},
	}
}

// compactCmd creates the compact command.
func compactCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "compact",
		Usage: "Compact a conversation (reads a turns JSON array from stdin)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-tokens", Usage: "Token budget override"},
			&cli.IntFlag{Name: "min-turns", Usage: "Minimum recent turns kept verbatim"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("turns JSON must be piped via stdin"))
			}
			body, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			var turns []compact.Turn
			if err := json.Unmarshal([]byte(body), &turns); err != nil {
				return outputError(errors.NewInvalidRequest("invalid turns JSON: " + err.Error()))
			}

			ccfg := compact.ConfigFrom(cfg)
			if v := c.Int("max-tokens"); v > 0 {
				ccfg.MaxTokens = v
			}
			if v := c.Int("min-turns"); v > 0 {
				ccfg.MinTurnsToKeep = v
			}

			return outputJSON(compact.New(ccfg).Compact(turns))
		},
	}
}

// contextCmd creates the context command.
func contextCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Build an injection-ready context block (optionally reads turns JSON from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "identity", Aliases: []string{"i"}, Required: true, Usage: "Identity key"},
		},
		Action: func(c *cli.Context) error {
			var turns []compact.Turn
			if stdinHasData() {
				body, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if body != "" {
					if err := json.Unmarshal([]byte(body), &turns); err != nil {
						return outputError(errors.NewInvalidRequest("invalid turns JSON: " + err.Error()))
					}
				}
			}

			compactor := compact.New(compact.ConfigFrom(cfg))
			sess, err := session.New(c.String("identity"), st, compactor, nil, zerolog.Nop())
			if err != nil {
				return outputError(err)
			}
			for _, turn := range turns {
				sess.RecordTurn(turn.Role, turn.Content)
			}

			block, err := sess.BuildContext()
			if err != nil {
				return outputError(err)
			}
			fmt.Println(block)
			return nil
		},
	}
}

// impactCmd creates the impact command.
func impactCmd(tracker *metrics.Tracker) *cli.Command {
	return &cli.Command{
		Name:  "impact",
		Usage: "Show the collective impact report",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"m"}, Usage: "Render the report as markdown"},
		},
		Action: func(c *cli.Context) error {
			if tracker == nil {
				return outputError(errors.NewInvalidRequest("impact tracking is not available"))
			}
			report := tracker.Summary()
			if c.Bool("markdown") {
				fmt.Println(report.Markdown())
				return nil
			}
			return outputJSON(report)
		},
	}
}

// webCmd creates the web command.
func webCmd(st *store.Store, cfg *config.Config, tracker *metrics.Tracker) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Run the local dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8377, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(st, cfg, tracker, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError emits a JSON error envelope and a non-zero exit code.
func outputError(err error) error {
	var lErr *errors.LoamError
	if converted, ok := err.(*errors.LoamError); ok {
		lErr = converted
	} else {
		lErr = errors.NewInternal(err)
	}
	payload, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    string(lErr.Code),
			"message": lErr.Message,
			"status":  lErr.Status,
		},
	})
	return cli.Exit(string(payload), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
