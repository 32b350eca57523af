package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hypersales/generator"
	"hypersales/leads"
)

func newGenerateCmd() *cobra.Command {
	var (
		leadsPath  string
		senderPath string
		outPath    string
		tone       string
		size       string
		words      int
		prompt     string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate emails for a leads CSV and write them as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, agent, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sender, err := loadSender(senderPath)
			if err != nil {
				return err
			}
			settings := generator.EmailSettings{
				CustomWordCount: words,
				CustomPrompt:    prompt,
			}
			if err := settings.Tone.UnmarshalText([]byte(tone)); err != nil {
				return err
			}
			if err := settings.Size.UnmarshalText([]byte(size)); err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			f, err := os.Open(leadsPath)
			if err != nil {
				return err
			}
			defer f.Close()
			parsed, report, err := leads.Ingest(f)
			if err != nil {
				return err
			}
			logger.Info("[cli] leads loaded", zap.String("file", leadsPath), zap.String("report", report.String()))
			for _, r := range report.Rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped line %d: %s\n", r.Line, r.Reason)
			}

			res, err := agent.GenerateAll(cmd.Context(), sender, settings.Normalize(), parsed, cfg.BatchOptions())
			if generator.IsConfigError(err) {
				return errors.New(generator.ConfigErrorMessage)
			}
			if err != nil {
				return err
			}
			for _, fl := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "lead %d (%s): %s: %s\n", fl.Index, res.Emails[fl.Index].Lead.Name, fl.Kind, fl.Detail)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), res.Summary())

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				out, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer out.Close()
				w = out
			}
			return leads.Export(w, res.Emails)
		},
	}
	cmd.Flags().StringVar(&leadsPath, "leads", "", "leads CSV file (NAME, COMPANY NAME, PRODUCT DESCRIPTION, EMAIL)")
	cmd.Flags().StringVar(&senderPath, "sender", "", "sender profile YAML file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output CSV file")
	cmd.Flags().StringVar(&tone, "tone", string(generator.ToneProfessional), "Professional, Friendly, Casual or Formal")
	cmd.Flags().StringVar(&size, "size", string(generator.SizeMedium), "Short, Medium, Long or Custom")
	cmd.Flags().IntVar(&words, "words", 0, "word count when --size=Custom")
	cmd.Flags().StringVar(&prompt, "prompt", "", "additional instructions appended to every prompt")
	_ = cmd.MarkFlagRequired("leads")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func loadSender(path string) (generator.Sender, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return generator.Sender{}, err
	}
	var s generator.Sender
	if err := yaml.Unmarshal(data, &s); err != nil {
		return generator.Sender{}, fmt.Errorf("parse sender %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return generator.Sender{}, err
	}
	return s, nil
}

func newSampleCSVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-csv",
		Short: "Print a sample leads CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(leads.SampleCSV())
			return err
		},
	}
}
