package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tripmatch/internal/attachment"
	"github.com/sells-group/tripmatch/internal/model"
)

var assignAttachments []string

var assignCmd = &cobra.Command{
	Use:   "assign [document.json]",
	Short: "Extract, match and persist one document",
	Long:  "Reads one document JSON (a file, or stdin when omitted), runs the extraction call, decides which trip its items belong to, persists the decision and prints the result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "assign: open document")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}
		doc, err := readDocument(in, time.Now)
		if err != nil {
			return err
		}
		if len(assignAttachments) > 0 {
			pdf := attachment.NewPdfToText(cfg.Attachment.PdfToTextPath)
			doc = appendAttachmentText(doc, attachment.Collect(ctx, pdf, assignAttachments))
		}

		env, err := initPipeline(ctx, "assign")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, doc)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "assign: encode result")
	},
}

func init() {
	assignCmd.Flags().StringSliceVar(&assignAttachments, "attachment", nil, "PDF attachment to extract text from (repeatable)")
	rootCmd.AddCommand(assignCmd)
}

// appendAttachmentText adds extracted attachment text after any the
// document already carries.
func appendAttachmentText(doc model.Document, text string) model.Document {
	if text == "" {
		return doc
	}
	if strings.TrimSpace(doc.AttachmentText) == "" {
		doc.AttachmentText = text
		return doc
	}
	doc.AttachmentText = strings.TrimSpace(doc.AttachmentText) + "\n\n" + text
	return doc
}

// readDocument decodes one document and checks the fields the pipeline
// needs. A missing received_at becomes now.
func readDocument(r io.Reader, now func() time.Time) (model.Document, error) {
	var doc model.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.Document{}, eris.Wrap(err, "decode document")
	}
	doc.AccountID = strings.TrimSpace(doc.AccountID)
	if doc.AccountID == "" {
		return model.Document{}, eris.New("document account_id is required")
	}
	if strings.TrimSpace(doc.Subject) == "" && strings.TrimSpace(doc.Body) == "" && strings.TrimSpace(doc.AttachmentText) == "" {
		return model.Document{}, eris.New("document has no subject, body or attachment text")
	}
	if doc.ReceivedAt.IsZero() {
		doc.ReceivedAt = now().UTC()
	}
	return doc, nil
}
