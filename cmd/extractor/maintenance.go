package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/repository"
)

// --- dbhealth ---

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check the audit database and print job counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openStore(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.HealthCheck(ctx, time.Second); err != nil {
			return fmt.Errorf("DB health: FAIL (%w)", err)
		}
		fmt.Printf("DB health: OK (%s)\n", a.db.Dialect())

		list, err := a.audit.ListJobs(ctx, repository.JobFilter{})
		if err != nil {
			return err
		}
		counts := map[constants.JobStatus]int{}
		attempts := 0
		for _, j := range list {
			counts[j.Status]++
			attempts += len(j.Attempts)
		}
		fmt.Printf("jobs: %d, attempts: %d\n", len(list), attempts)
		for _, s := range constants.JobStatuses {
			fmt.Printf("- %s: %d\n", s, counts[constants.JobStatus(s)])
		}
		return nil
	},
}

// --- repeat ---

var (
	repeatParams paramFlags
	repeatTimes  int
	repeatPause  time.Duration
)

var repeatCmd = &cobra.Command{
	Use:   "repeat <job-id>",
	Short: "Reprocess the same job several times to compare model stability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return common.ConfigError("job id must be a UUID")
		}
		ctx := common.WithRunID(cmd.Context(), "repeat-"+uuid.NewString()[:8])
		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		for i := 1; i <= repeatTimes && ctx.Err() == nil; i++ {
			start := time.Now()
			att, err := a.processor.Reprocess(ctx, id, repeatParams.params(entity.ModelParams{}))
			if err != nil && att.ID == uuid.Nil {
				return err
			}
			composite := "-"
			if att.Evaluation != nil {
				composite = fmt.Sprintf("%.2f", att.Evaluation.Composite)
			}
			fmt.Printf("%d\tseq=%d\t%s\ths=%s\tcomposite=%s\t%dms\n",
				i, att.Seq, att.Status, displayCode(att.HSCode), composite, time.Since(start).Milliseconds())
			if i < repeatTimes {
				select {
				case <-ctx.Done():
				case <-time.After(repeatPause):
				}
			}
		}
		return ctx.Err()
	},
}

func init() {
	repeatCmd.Flags().IntVar(&repeatTimes, "times", 3, "number of attempts to run")
	repeatCmd.Flags().DurationVar(&repeatPause, "pause", 750*time.Millisecond, "pause between attempts")
	repeatParams.register(repeatCmd)
	rootCmd.AddCommand(dbhealthCmd, repeatCmd)
}
