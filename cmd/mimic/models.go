package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/markov"
)

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train NAME [FILE...]",
		Short: "Build a model from text files or stdin and store it",
		Long: `Train builds a model from the concatenated text of the given files (or
stdin when no file, or "-", is given) and stores it under NAME, replacing
any model already stored with that name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			readers := make([]io.Reader, 0, len(args)-1)
			for _, path := range args[1:] {
				if path == "-" {
					readers = append(readers, cmd.InOrStdin())
					continue
				}
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open corpus: %w", err)
				}
				defer func(f *os.File) {
					_ = f.Close()
				}(f)
				// Keep sentences in different files apart.
				readers = append(readers, f, strings.NewReader("\n"))
			}
			if len(readers) == 0 {
				readers = append(readers, cmd.InOrStdin())
			}

			model, err := a.newBuilder().Build(cmd.Context(), io.MultiReader(readers...))
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if _, err = store.SaveModel(cmd.Context(), name, model); err != nil {
				return err
			}
			stats := model.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Trained model %q: %d sources, %d transitions, %d words\n",
				name, stats.Sources, stats.Transitions, stats.Vocabulary)
			return nil
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List stored models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			models, err := store.GetModelInfos(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range sortedModels(models) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", info.Id, info.Name)
			}
			return nil
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Delete a stored model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if err = store.RemoveModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed model %q\n", args[0])
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [NAME]",
		Short: "Show statistics for one model or the whole store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				info, err := store.GetModelInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				stats, err := store.GetModelStats(cmd.Context(), info)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, stats)
				}
				printModelStats(out, info, stats)
				return nil
			}

			stats, err := store.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "Models: %d\nVocabulary: %d\n", len(stats.Models), stats.VocabSize)
			for _, info := range sortedModels(infoMap(stats.Models)) {
				fmt.Fprintln(out)
				printModelStats(out, info, stats.Stats[info.Id])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove vocabulary no stored model uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.PruneVocabulary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d unused words\n", n)
			return nil
		},
	}
}

func printModelStats(w io.Writer, info markov.ModelInfo, stats markov.ModelStats) {
	fmt.Fprintf(w, "Model %q (id %d)\n", info.Name, info.Id)
	fmt.Fprintf(w, "  sources:        %d\n", stats.Sources)
	fmt.Fprintf(w, "  transitions:    %d\n", stats.Transitions)
	fmt.Fprintf(w, "  vocabulary:     %d\n", stats.Vocabulary)
	fmt.Fprintf(w, "  starting words: %d\n", stats.StartingWords)

	terminators := make([]string, 0, len(stats.Terminators))
	for t := range stats.Terminators {
		terminators = append(terminators, t)
	}
	slices.Sort(terminators)
	for _, t := range terminators {
		fmt.Fprintf(w, "  terminator %s:   %.3f\n", t, stats.Terminators[t])
	}
}

func sortedModels(models map[string]markov.ModelInfo) []markov.ModelInfo {
	list := make([]markov.ModelInfo, 0, len(models))
	for _, info := range models {
		list = append(list, info)
	}
	slices.SortFunc(list, func(a, b markov.ModelInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return list
}

func infoMap(models []markov.ModelInfo) map[string]markov.ModelInfo {
	m := make(map[string]markov.ModelInfo, len(models))
	for _, info := range models {
		m[info.Name] = info
	}
	return m
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
