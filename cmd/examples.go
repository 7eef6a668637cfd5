package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/model"
)

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Manage corrected extraction examples",
}

var examplesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import a JSON array of corrected extraction examples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("examples"); err != nil {
			return err
		}
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "examples: open file")
		}
		defer f.Close() //nolint:errcheck

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := importExamples(ctx, st, f)
		if err != nil {
			return err
		}
		zap.L().Info("examples imported", zap.Int("count", n))
		return nil
	},
}

func init() {
	examplesCmd.AddCommand(examplesImportCmd)
	rootCmd.AddCommand(examplesCmd)
}

// exampleSaver persists one example.
type exampleSaver interface {
	SaveExample(ctx context.Context, ex model.Example) (string, error)
}

// importExamples decodes a JSON array of examples and saves each one.
// Examples without a subject or corrected extraction are rejected.
func importExamples(ctx context.Context, st exampleSaver, r io.Reader) (int, error) {
	var examples []model.Example
	if err := json.NewDecoder(r).Decode(&examples); err != nil {
		return 0, eris.Wrap(err, "examples: decode")
	}

	for i, ex := range examples {
		if strings.TrimSpace(ex.Subject) == "" || len(ex.CorrectedExtraction) == 0 {
			return i, eris.Errorf("examples: entry %d needs email_subject and corrected_extraction", i)
		}
		ex.SenderDomain = strings.ToLower(strings.TrimSpace(ex.SenderDomain))
		if _, err := st.SaveExample(ctx, ex); err != nil {
			return i, eris.Wrapf(err, "examples: save entry %d", i)
		}
	}
	return len(examples), nil
}
