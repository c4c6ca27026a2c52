package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/repository"
	"github.com/dharsanguruparan/propshield/internal/s3storage"
	"github.com/dharsanguruparan/propshield/internal/status"
)

func newUploadCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Submit documents for a new verification",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			user, err := a.user(ctx)
			if err != nil {
				return err
			}
			files, err := selectFiles(args)
			if err != nil {
				return err
			}
			var sel intake.Selection
			if docType != "" {
				t, err := model.ParseDocumentType(docType)
				if err != nil {
					return err
				}
				if err := sel.SetType(t); err != nil {
					return err
				}
			}
			if err := sel.Add(files...); err != nil {
				return err
			}

			o, closeQueue := a.orchestrator()
			defer closeQueue()

			out := cmd.OutOrStdout()
			res, err := sel.Submit(ctx, o, user, func(p int) {
				fmt.Fprintf(out, "\rUploading... %3d%%", p)
			})
			fmt.Fprintln(out)
			if err != nil {
				var serr *intake.SubmitError
				if errors.As(err, &serr) && serr.VerificationID != uuid.Nil && !serr.Compensated {
					fmt.Fprintf(cmd.ErrOrStderr(), "verification %s may be incomplete\n", serr.VerificationID)
				}
				return err
			}
			fmt.Fprintf(out, "Verification %s submitted with %d document(s)\n", res.VerificationID, len(res.Documents))
			fmt.Fprintf(out, "Follow it with: propshield status --watch %s\n", res.VerificationID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type: sale_deed, ec, mutation, tax_receipt, property_card, approval_plan, title_deed, other")
	return cmd
}

func selectFiles(paths []string) ([]model.SelectedFile, error) {
	files := make([]model.SelectedFile, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, model.SelectedFile{
			Name: filepath.Base(abs),
			URI:  abs,
			Size: info.Size(),
		})
	}
	return files, nil
}

func newStatusCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status [verification-id]",
		Short: "Show verification progress, or list verifications",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			user, err := a.user(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				list, err := a.backend.Verifications.ListVerifications(ctx, user.ID)
				if err != nil {
					return err
				}
				printVerifications(out, list)
				return nil
			}
			id, err := a.owned(ctx, user, args[0])
			if err != nil {
				return err
			}
			tracker := status.NewTracker(a.backend.Verifications, a.backend.Documents, a.cfg.PollInterval, a.log)
			if !watch {
				p, err := tracker.Snapshot(ctx, id)
				if err != nil {
					return err
				}
				printProgress(out, p)
				return nil
			}
			err = tracker.Watch(ctx, id, func(p status.Progress) { printProgress(out, p) })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling until the verification finishes")
	return cmd
}

// owned parses rawID and checks the verification belongs to user.
func (a *app) owned(ctx context.Context, user *model.Profile, rawID string) (uuid.UUID, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid verification id %q", rawID)
	}
	v, err := a.backend.Verifications.GetVerification(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if v.UserID != user.ID {
		return uuid.Nil, repository.ErrNotFound
	}
	return id, nil
}

func printVerifications(out io.Writer, list []model.Verification) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No verifications yet")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRISK\tCREATED")
	for _, v := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Status, v.RiskRating, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

var stageMarks = map[status.StageState]string{
	status.StagePending:    "[ ]",
	status.StageProcessing: "[>]",
	status.StageCompleted:  "[x]",
	status.StageFailed:     "[!]",
}

func printProgress(out io.Writer, p status.Progress) {
	fmt.Fprintf(out, "Verification %s: %s (%d%%)\n", p.VerificationID, p.Status, p.Percent)
	for _, s := range p.Stages {
		fmt.Fprintf(out, "  %s %s\n", stageMarks[s.State], s.Name)
	}
	if p.RiskRating.IsScored() {
		fmt.Fprintf(out, "Risk rating: %s", p.RiskRating)
		if p.FraudScore != nil {
			fmt.Fprintf(out, " (score %.2f)", *p.FraudScore)
		}
		fmt.Fprintln(out)
	}
	if p.ReportURL != "" {
		fmt.Fprintf(out, "Report: %s\n", p.ReportURL)
	}
}

func newFilesCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List your uploaded files, newest first",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			user, err := a.user(ctx)
			if err != nil {
				return err
			}
			entries, err := a.backend.Storage.List(ctx, a.backend.Buckets.Documents, user.ID.String(), s3storage.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No files")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tTYPE\tMODIFIED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Name, e.Size, e.ContentType, e.LastModified.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <document-id>",
		Short: "Print a temporary download link for a document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			user, err := a.user(ctx)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			doc, err := a.backend.Documents.GetDocument(ctx, id)
			if err != nil {
				return err
			}
			if _, err := a.owned(ctx, user, doc.VerificationID.String()); err != nil {
				return err
			}
			u, err := a.backend.Storage.SignedURL(ctx, doc.Bucket, doc.StoragePath, a.cfg.SignedURLTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		}),
	}
}
