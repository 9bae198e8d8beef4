package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/async"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/repository"
	"github.com/joseph-ayodele/catalog-extractor/internal/server"
)

// --- run ---

var (
	runSrc    sourceFlags
	runParams paramFlags
	runJob    jobFlags
	runOut    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract one product from documents, a spreadsheet and/or web pages",
	Long: `Create a job, run one full attempt and print the attempt as JSON.

Page and row indices are 0-based.

Examples:
  extractor run --category cosmetics --doc catalog.pdf --pages 2,3
  extractor run --category subtype --qualifier "Hydra Night Cream" --url https://shop.example/p/1
  extractor run --category fragrance --sheet products.xlsx --rows 4 --url https://a.example --url https://b.example`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := runJob.context(cmd.Context())
		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srcs, err := runSrc.sources()
		if err != nil {
			return err
		}
		spec := entity.JobSpec{
			Category:  runJob.category,
			Qualifier: runJob.qualifier,
			Sources:   srcs,
			Params:    runParams.params(a.defaultParams()),
		}
		job, err := a.processor.Create(ctx, spec)
		if err != nil {
			return err
		}
		attempt, runErr := a.processor.Process(ctx, job.ID)
		if err := printAttempt(attempt, runOut); err != nil {
			return err
		}
		return runErr
	},
}

// --- batch ---

var (
	batchSrc    sourceFlags
	batchParams paramFlags
	batchJob    jobFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one job per data row of a spreadsheet",
	Long: `Expand a spreadsheet into one job per non-empty data row and process
them in sheet order. A failing row does not stop the batch.

Examples:
  extractor batch --category cosmetics --sheet products.xlsx --sheet-name Products
  extractor batch --category supplements --sheet list.csv --rows 0,1,2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := batchJob.context(cmd.Context())
		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srcs, err := batchSrc.sources()
		if err != nil {
			return err
		}
		tmpl := entity.JobSpec{
			Category:  batchJob.category,
			Qualifier: batchJob.qualifier,
			Params:    batchParams.params(a.defaultParams()),
		}
		rep, err := a.batch.Run(ctx, tmpl, srcs)
		if err != nil {
			return err
		}
		if err := printJSON(rep); err != nil {
			return err
		}
		if rep.Failed > 0 || rep.Cancelled > 0 {
			return fmt.Errorf("%d of %d rows did not complete", rep.Failed+rep.Cancelled, rep.Created)
		}
		return nil
	},
}

// --- reprocess ---

var (
	reprocessParams paramFlags
	reprocessJob    jobFlags
	hscodeOnly      bool
	reprocessOut    string
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <job-id>",
	Short: "Append a new attempt to an existing job",
	Long: `Run a new full attempt, optionally with different model params, or with
--hscode-only rerun just the classification on the latest completed record.
Earlier attempts are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return common.ConfigError("job id must be a UUID")
		}
		ctx := reprocessJob.context(cmd.Context())
		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			attempt entity.Attempt
			runErr  error
		)
		if hscodeOnly {
			attempt, runErr = a.processor.Reclassify(ctx, id)
		} else {
			attempt, runErr = a.processor.Reprocess(ctx, id, reprocessParams.params(entity.ModelParams{}))
		}
		if attempt.ID == uuid.Nil {
			return runErr
		}
		if err := printAttempt(attempt, reprocessOut); err != nil {
			return err
		}
		return runErr
	},
}

// --- jobs ---

var jobsStatus string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List recorded jobs, or show one job with its attempts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openStore(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return common.ConfigError("job id must be a UUID")
			}
			job, err := a.audit.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(job)
		}
		list, err := a.audit.ListJobs(cmd.Context(), repository.JobFilter{Status: constants.JobStatus(jobsStatus)})
		if err != nil {
			return err
		}
		for _, j := range list {
			last := "-"
			if at, ok := j.LastAttempt(); ok {
				last = fmt.Sprintf("#%d %s %s", at.Seq, at.Status, displayCode(at.HSCode))
			}
			fmt.Printf("%s\t%s\t%s\t%d attempts\t%s\n", j.ID, j.Category, j.Status, len(j.Attempts), last)
		}
		return nil
	},
}

// --- export ---

var (
	exportOut      string
	exportStatus   string
	exportCategory string
	exportSince    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the attempt audit trail to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := repository.JobFilter{Status: constants.JobStatus(exportStatus)}
		if exportCategory != "" {
			cat, ok := constants.Canonicalize(exportCategory)
			if !ok {
				return common.ConfigError("unknown category %q", exportCategory)
			}
			filter.Category = cat
		}
		if exportSince != "" {
			t, err := time.Parse("2006-01-02", exportSince)
			if err != nil {
				return common.ConfigError("--since must be YYYY-MM-DD")
			}
			filter.Since = t
		}

		a, err := openStore(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.export.ExportAttemptsXLSX(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(exportOut), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Println(exportOut)
		return nil
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and gRPC health service with a single background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		queue := async.NewWorkerQueue(a.processor.Handle, logger, async.WithTaskTimeout(a.cfg.LLM.AttemptTimeout+time.Minute))
		handler := server.NewHandler(server.Deps{
			Processor: a.processor,
			Batch:     a.batch,
			Queue:     queue,
			Export:    a.export,
			DB:        a.db,
			Logger:    logger,
		})
		return server.New(a.cfg.Server, handler, queue, a.db, logger).Run(ctx)
	},
}

func init() {
	runSrc.register(runCmd, true)
	runParams.register(runCmd)
	runJob.register(runCmd)
	runCmd.Flags().StringVar(&runOut, "out", "", "also write the extracted record JSON to this file")

	batchSrc.register(batchCmd, false)
	batchParams.register(batchCmd)
	batchJob.register(batchCmd)

	reprocessParams.register(reprocessCmd)
	reprocessJob.registerUser(reprocessCmd)
	reprocessCmd.Flags().BoolVar(&hscodeOnly, "hscode-only", false, "rerun only the HS code classification")
	reprocessCmd.Flags().StringVar(&reprocessOut, "out", "", "also write the extracted record JSON to this file")

	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by job status")

	exportCmd.Flags().StringVar(&exportOut, "out", "attempts.xlsx", "output XLSX path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by job status")
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "filter by category")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only jobs created on or after YYYY-MM-DD")
}

// displayCode marks stored codes that are no longer in the enumeration.
func displayCode(code string) string {
	switch {
	case code == "":
		return "-"
	case constants.IsValidHSCode(code):
		return code
	default:
		return code + " (unknown code)"
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printAttempt prints the attempt without its (large) input text and writes
// the record to out when asked.
func printAttempt(a entity.Attempt, out string) error {
	view := a
	view.InputText = ""
	if err := printJSON(view); err != nil {
		return err
	}
	if out == "" || len(a.Record) == 0 {
		return nil
	}
	var pretty any
	if err := json.Unmarshal(a.Record, &pretty); err != nil {
		return err
	}
	b, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}
