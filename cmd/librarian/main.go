package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/library-lending-api/internal/app"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/service"
	"github.com/noah-isme/library-lending-api/pkg/config"
	"github.com/noah-isme/library-lending-api/pkg/logger"
)

type sweepRunner interface {
	RunOnce(ctx context.Context) (service.SweepResult, error)
}

type policyLookup interface {
	EffectivePolicy(ctx context.Context, bookID, studentID string) (*models.LendingPolicy, error)
}

// deps is resolved lazily so --help works without a database.
type deps struct {
	sweeper  func() (sweepRunner, func(), error)
	policies func() (policyLookup, func(), error)
}

func main() {
	if err := newRootCmd(liveDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}

func liveDeps() deps {
	open := func() (*app.Container, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logr, err := logger.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		return app.New(cfg, logr.Named("librarian"))
	}
	return deps{
		sweeper: func() (sweepRunner, func(), error) {
			c, err := open()
			if err != nil {
				return nil, nil, err
			}
			c.Start(context.Background())
			return c.Sweeper, c.Close, nil
		},
		policies: func() (policyLookup, func(), error) {
			c, err := open()
			if err != nil {
				return nil, nil, err
			}
			return c.Policies, c.Close, nil
		},
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:          "librarian",
		Short:        "Operator tools for the library lending engine",
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCmd(d), newPolicyCmd(d))
	return root
}

func newSweepCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed pickups and mark overdue loans once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sweeper, closeFn, err := d.sweeper()
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newPolicyCmd(d deps) *cobra.Command {
	var bookID, studentID string
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective lending policy for a book and student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policies, closeFn, err := d.policies()
			if err != nil {
				return err
			}
			defer closeFn()

			policy, err := policies.EffectivePolicy(cmd.Context(), bookID, studentID)
			if err != nil {
				return fmt.Errorf("resolve policy: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), policy)
		},
	}
	cmd.Flags().StringVar(&bookID, "book", "", "book id")
	cmd.Flags().StringVar(&studentID, "student", "", "student id")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
