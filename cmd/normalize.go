package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tripmatch/internal/extract"
	"github.com/sells-group/tripmatch/internal/model"
)

var (
	normalizeSubject    string
	normalizeSourceFile string
	normalizeRefDate    string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [response-file]",
	Short: "Normalize a raw extraction response without matching or persisting it",
	Long:  "Reads the text returned by the extraction call (a file, or stdin when omitted) and prints the normalized extraction as JSON.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "normalize: open response")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		var source string
		if normalizeSourceFile != "" {
			b, err := os.ReadFile(normalizeSourceFile)
			if err != nil {
				return eris.Wrap(err, "normalize: read source")
			}
			source = string(b)
		}

		loc, err := cfg.Engine.Location()
		if err != nil {
			return err
		}
		nctx, err := buildNormalizeContext(normalizeRefDate, normalizeSubject, source, time.Now().In(loc))
		if err != nil {
			return err
		}

		return runNormalize(in, cmd.OutOrStdout(), newNormalizer(cfg.Engine), nctx)
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeSubject, "subject", "", "email subject (used for explicit years and provider fallback)")
	normalizeCmd.Flags().StringVar(&normalizeSourceFile, "source-file", "", "file with the email body and attachment text")
	normalizeCmd.Flags().StringVar(&normalizeRefDate, "ref-date", "", "reference date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(normalizeCmd)
}

// buildNormalizeContext assembles a NormalizeContext. An empty refDate
// means the calendar day of now.
func buildNormalizeContext(refDate, subject, source string, now time.Time) (model.NormalizeContext, error) {
	ref := model.DateOf(now)
	if refDate != "" {
		d, err := model.ParseDate(refDate)
		if err != nil {
			return model.NormalizeContext{}, eris.Wrap(err, "normalize: invalid --ref-date")
		}
		ref = d
	}
	doc := model.Document{Subject: subject, Body: source}
	return model.NormalizeContext{
		Reference:  ref,
		SourceText: doc.SourceText(),
		Subject:    subject,
	}, nil
}

func runNormalize(in io.Reader, out io.Writer, n extract.Normalizer, nctx model.NormalizeContext) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return eris.Wrap(err, "normalize: read response")
	}
	ext := n.ParseResponse(string(raw), nctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(ext), "normalize: encode")
}
