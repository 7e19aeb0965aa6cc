// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/util"
)

func newSupplementsCommand(a *app) *cobra.Command {
	var (
		goal string
		path string
	)

	cmd := &cobra.Command{
		Use:     "supplements [name]",
		Aliases: []string{"supps"},
		Short:   "List supplement catalog entries",
		Long: `List the supplement catalog the relay grounds its replies on.
Filter by --goal, or pass a name to show one entry in full.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if path != "" {
				cfg.Knowledge.Path = path
			}
			logger := a.setupLogging(cfg, true)
			defer a.close()

			kb, err := knowledge.Load(cfg.Knowledge.Path, logger)
			if err != nil {
				return commandError("supplements", "load", err)
			}

			if len(args) == 1 {
				s, ok := kb.Find(args[0])
				if !ok {
					err := &UsageError{Msg: fmt.Sprintf("no supplement named %q", args[0])}
					if a.jsonOut {
						_ = a.printJSON("supplements", nil, err)
					}
					return err
				}
				if a.jsonOut {
					return a.printJSON("supplements", s, nil)
				}
				printSupplement(a.out, s)
				return nil
			}

			supps := kb.All()
			if goal != "" {
				supps = kb.ForGoal(goal)
			}
			if a.jsonOut {
				return a.printJSON("supplements", supps, nil)
			}
			printSupplementTable(a.out, supps, goal)
			return nil
		},
	}

	cmd.Flags().StringVarP(&goal, "goal", "g", "", "only entries relevant to this health goal")
	cmd.Flags().StringVar(&path, "knowledge", "", "catalog file (default from config)")
	return cmd
}

func printSupplementTable(w io.Writer, supps []knowledge.Supplement, goal string) {
	if len(supps) == 0 {
		if goal != "" {
			fmt.Fprintf(w, "No supplements found for goal %q.\n", goal)
		} else {
			fmt.Fprintln(w, "The catalog is empty.")
		}
		return
	}

	title := "Supplements"
	if goal != "" {
		title = fmt.Sprintf("Supplements for %s", goal)
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w)

	for _, s := range supps {
		fmt.Fprintf(w, "  %s  %s\n",
			valueStyle.Render(util.TruncateWidth(s.Name, 28)),
			dimStyle.Render(strings.Join(s.RelevantGoals, ", ")),
		)
		if s.Dosage != "" {
			fmt.Fprintf(w, "    %s %s\n", labelStyle.Render("Dosage:"), s.Dosage)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d entries", len(supps))))
}

func printSupplement(w io.Writer, s knowledge.Supplement) {
	fmt.Fprintln(w, titleStyle.Render(s.Name))
	fields := []struct{ label, value string }{
		{"Description:", s.Description},
		{"Dosage:", s.Dosage},
		{"Cautions:", s.Cautions},
		{"Evidence:", s.EvidenceLevel},
		{"Goals:", strings.Join(s.RelevantGoals, ", ")},
		{"Link:", s.ReferralLink},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(w, "  %-13s %s\n", labelStyle.Render(f.label), f.value)
	}
}
