package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
	"neuro-ai/internal/database"
	"neuro-ai/internal/engagement"
	"neuro-ai/internal/platform/ipify"
)

func (a *app) openRepository(ctx context.Context) (engagement.Repository, *sql.DB, error) {
	db, err := database.Open(ctx, database.Options{
		URL:      a.cfg.Database.URL,
		MaxConns: 2,
		Attempts: 1,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return engagement.NewRepository(db), db, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newVisitorsCmd(a *app) *cobra.Command {
	var (
		watch       time.Duration
		sessionFile string
		noLookup    bool
	)
	cmd := &cobra.Command{
		Use:   "visitors",
		Short: "Show the online visitor count",
		Long: `Marks this machine online, prints the live visitor count and marks it
offline on exit. With --watch the count is printed whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			repo, db, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			feed, err := changefeed.Open(ctx, a.cfg, a.logger)
			if err != nil {
				a.logger.Warn("change feed unavailable, polling only", zap.Error(err))
				feed = nil
			} else {
				defer feed.Close()
			}

			session, err := engagement.LoadSession(engagement.FileTokenStore{Path: sessionFile})
			if err != nil {
				return err
			}

			var lookup engagement.IPLookup
			if !noLookup {
				lookup = ipify.NewClient(a.cfg.Engagement.IPLookupURL, a.logger)
			}

			countInterval := a.cfg.Engagement.CountInterval
			if watch > 0 && watch < countInterval {
				countInterval = watch
			}
			tracker := engagement.NewVisitorTracker(repo, feed, lookup, session, engagement.TrackerOptions{
				HeartbeatInterval: a.cfg.Engagement.HeartbeatInterval,
				CountInterval:     countInterval,
				OfflineAfter:      a.cfg.Engagement.OfflineAfter,
			}, a.logger)
			tracker.Start(ctx)
			defer func() {
				leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tracker.Stop(leaveCtx)
			}()

			if watch <= 0 {
				// Let the first refresh land.
				time.Sleep(200 * time.Millisecond)
				return printVisitors(cmd, a, tracker.VisitorID(), tracker.Count())
			}

			last := -1
			ticker := time.NewTicker(watch)
			defer ticker.Stop()
			for {
				if n := tracker.Count(); n != last {
					last = n
					if err := printVisitors(cmd, a, tracker.VisitorID(), n); err != nil {
						return err
					}
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "Keep running and print the count every interval while it changes")
	cmd.Flags().StringVar(&sessionFile, "session-file", engagement.DefaultTokenPath(), "Where the visitor session token is kept")
	cmd.Flags().BoolVar(&noLookup, "no-ip-lookup", false, "Do not resolve the public IP, use the session token alone")
	return cmd
}

type visitorsOutput struct {
	VisitorID      string `json:"visitor_id" yaml:"visitor_id"`
	OnlineVisitors int    `json:"online_visitors" yaml:"online_visitors"`
}

func printVisitors(cmd *cobra.Command, a *app, id string, count int) error {
	out := visitorsOutput{VisitorID: id, OnlineVisitors: count}
	if handled, err := writeStructured(cmd.OutOrStdout(), a.outputFormat, out); handled {
		return err
	}
	green := color.New(color.FgGreen, color.Bold)
	green.Fprint(cmd.OutOrStdout(), "● ")
	fmt.Fprintf(cmd.OutOrStdout(), "%d online\n", count)
	return nil
}

func newFeedbackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "feedback TYPE",
		Short:     "Record quick feedback on a result",
		Long:      "Records one of: true_result, false_result, partially_correct.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(engagement.TrueResult), string(engagement.FalseResult), string(engagement.PartiallyCorrect)},
		RunE: func(cmd *cobra.Command, args []string) error {
			t := engagement.FeedbackType(args[0])
			if !t.Valid() {
				return fmt.Errorf("%w: %q", engagement.ErrInvalidFeedbackType, args[0])
			}
			svc, closeFn, err := a.feedbackService(commandContext(cmd))
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Submit(commandContext(cmd), t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Thanks! Recorded %q\n", t.Label())
			return nil
		},
	}
	cmd.AddCommand(newDetailedFeedbackCmd(a))
	return cmd
}

func newDetailedFeedbackCmd(a *app) *cobra.Command {
	var d engagement.DetailedFeedback
	cmd := &cobra.Command{
		Use:   "detailed",
		Short: "Leave a testimonial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.Validate(); err != nil {
				return err
			}
			svc, closeFn, err := a.feedbackService(commandContext(cmd))
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := svc.SubmitDetailed(commandContext(cmd), d)
			if err != nil {
				return err
			}
			if handled, err := writeStructured(cmd.OutOrStdout(), a.outputFormat, t); handled {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thank you for your feedback!")
			return nil
		},
	}
	cmd.Flags().StringVar(&d.Name, "name", "", "Your name")
	cmd.Flags().StringVar(&d.Designation, "designation", "", "Your role, e.g. Caregiver")
	cmd.Flags().IntVar(&d.StarRating, "rating", 0, "Rating from 1 to 5")
	cmd.Flags().StringVar(&d.Comment, "comment", "", "Your comment")
	return cmd
}

func (a *app) feedbackService(ctx context.Context) (*engagement.FeedbackService, func(), error) {
	repo, db, err := a.openRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	// Postgres triggers notify on their own; other feeds need the publish.
	var feed changefeed.Feed
	if a.cfg.Engagement.ChangeFeed != "postgres" && a.cfg.Engagement.ChangeFeed != "local" {
		if feed, err = changefeed.Open(ctx, a.cfg, a.logger); err != nil {
			a.logger.Warn("change feed unavailable, skipping publish", zap.Error(err))
			feed = nil
		}
	}
	closeFn := func() {
		if feed != nil {
			feed.Close()
		}
		db.Close()
	}
	return engagement.NewFeedbackService(repo, feed, a.logger), closeFn, nil
}

func newAnalyticsCmd(a *app) *cobra.Command {
	var exportPath string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show the feedback breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, db, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := repo.CountFeedbackByType(ctx)
			if err != nil {
				return fmt.Errorf("failed to load feedback: %w", err)
			}
			analytics := engagement.BuildAnalytics(counts)

			if exportPath != "" {
				testimonials, err := repo.ListTestimonials(ctx, 0)
				if err != nil {
					return fmt.Errorf("failed to load testimonials: %w", err)
				}
				data, err := engagement.ExportXLSX(analytics, testimonials)
				if err != nil {
					return err
				}
				if err := os.WriteFile(exportPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
			}

			if handled, err := writeStructured(cmd.OutOrStdout(), a.outputFormat, analytics); handled {
				return err
			}
			displayAnalytics(cmd.OutOrStdout(), analytics)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "Also write analytics and testimonials to this .xlsx file")
	return cmd
}

func newTestimonialsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "testimonials",
		Short: "List the latest testimonials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo, db, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if limit <= 0 {
				limit = a.cfg.Engagement.TestimonialLimit
			}
			list, err := repo.ListTestimonials(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to load testimonials: %w", err)
			}
			if list == nil {
				list = []engagement.Testimonial{}
			}
			if handled, err := writeStructured(cmd.OutOrStdout(), a.outputFormat, list); handled {
				return err
			}
			displayTestimonials(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "How many to show (default TESTIMONIAL_LIMIT)")
	return cmd
}
