package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/markov"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		count       int
		maxWords    int
		temperature float64
		topK        int
		seed        uint64
		paragraph   bool
	)

	cmd := &cobra.Command{
		Use:   "generate NAME",
		Short: "Generate sentences from a stored model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := a.config.Markov
			flags := cmd.Flags()
			if flags.Changed("count") {
				settings.Sentences = count
			}
			if flags.Changed("max-words") {
				settings.MaxWords = maxWords
			}
			if flags.Changed("temperature") {
				settings.Temperature = temperature
			}
			if flags.Changed("top-k") {
				settings.TopK = topK
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			model, err := store.LoadModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			opts := settings.generateOptions()
			if flags.Changed("seed") {
				opts = append(opts, markov.WithSeed(seed))
			}
			g, err := markov.NewGenerator(model, opts...)
			if err != nil {
				return err
			}
			g.SetLogger(a.logger)

			out := cmd.OutOrStdout()
			if paragraph {
				text, err := g.Paragraph(cmd.Context(), settings.Sentences)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}

			for i := 0; i < settings.Sentences; i++ {
				sentence, err := g.Generate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sentence)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of sentences to generate")
	cmd.Flags().IntVar(&maxWords, "max-words", markov.DefaultMaxWords, "maximum words per sentence")
	cmd.Flags().Float64Var(&temperature, "temperature", 1.0, "sampling temperature; 0 always picks the most likely word")
	cmd.Flags().IntVar(&topK, "top-k", 0, "sample only among the k most likely words (0 disables)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible output")
	cmd.Flags().BoolVar(&paragraph, "paragraph", false, "join the non-empty sentences into one paragraph")
	return cmd
}
