package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/factflow/internal/app"
	"github.com/JonMunkholm/factflow/internal/convert"
	"github.com/JonMunkholm/factflow/internal/model"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Detect the delimiter, encoding, header and column types of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalysis(cmd.Context(), opts, args[0], func(a *app.App, analysis *model.Analysis) error {
				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return printJSON(out, analysis)
				}
				printAnalysis(out, analysis)
				return nil
			})
		},
	}
}

func newSuggestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <file>",
		Short: "Suggest dimension mappings for a CSV file and validate them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalysis(cmd.Context(), opts, args[0], func(a *app.App, analysis *model.Analysis) error {
				ctx := cmd.Context()
				suggestions, err := a.Service.SuggestMappings(ctx, analysis.ID)
				if err != nil {
					return err
				}
				validation, err := a.Service.ValidateMappings(ctx, analysis.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return printJSON(out, struct {
						Suggestions []model.DimensionMapping `json:"suggestions"`
						Validation  model.ValidationResult   `json:"validation"`
					}{suggestions, validation})
				}
				printMappings(out, analysis, suggestions)
				printValidation(out, validation)
				return nil
			})
		},
	}
}

func newProcessCmd(opts *options) *cobra.Command {
	var (
		overrides []string
		showFacts bool
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Transform a CSV file into fact records",
		Long: `Analyze the file, apply the suggested mappings (with any --map
overrides) and run a processing job, printing its progress, row errors
and, with --facts, the fact records it wrote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseOverrides(overrides)
			if err != nil {
				return err
			}

			return withAnalysis(cmd.Context(), opts, args[0], func(a *app.App, analysis *model.Analysis) error {
				return runProcess(cmd, opts, a, analysis, parsed, showFacts)
			})
		},
	}

	cmd.Flags().StringArrayVar(&overrides, "map", nil, "Mapping override as column=TYPE (repeatable), e.g. --map 2=TIME")
	cmd.Flags().BoolVar(&showFacts, "facts", false, "Print the fact records written by the job")
	return cmd
}

// override pins one column to a dimension type.
type override struct {
	column  int
	dimType model.DimensionType
}

func parseOverrides(raw []string) ([]override, error) {
	out := make([]override, 0, len(raw))
	for _, r := range raw {
		col, typ, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --map %q: expected column=TYPE", r)
		}
		index, err := strconv.Atoi(strings.TrimSpace(col))
		if err != nil || index < 0 {
			return nil, fmt.Errorf("invalid --map %q: column must be a non-negative integer", r)
		}
		dimType, err := model.ParseDimensionType(strings.TrimSpace(typ))
		if err != nil {
			return nil, fmt.Errorf("invalid --map %q: %w", r, err)
		}
		out = append(out, override{column: index, dimType: dimType})
	}
	return out, nil
}

// withAnalysis builds the app, registers and analyzes path, and hands both
// to fn. The app is closed when fn returns.
func withAnalysis(ctx context.Context, opts *options, path string, fn func(*app.App, *model.Analysis) error) error {
	a, err := opts.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	upload, err := a.Service.RegisterFile(ctx, path)
	if err != nil {
		return err
	}
	analysis, err := a.Service.AnalyzeStructure(ctx, upload.ID)
	if err != nil {
		return err
	}
	return fn(a, analysis)
}

func runProcess(cmd *cobra.Command, opts *options, a *app.App, analysis *model.Analysis, overrides []override, showFacts bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	// Columns without an override keep their suggestion.
	for _, o := range overrides {
		if _, err := a.Service.SaveMapping(ctx, analysis.ID, o.column, o.dimType, nil); err != nil {
			return err
		}
	}

	job, err := a.Service.StartProcessing(ctx, analysis.UploadJobID)
	if err != nil {
		return err
	}

	events, cancel, err := a.Service.SubscribeProgress(ctx, job.ID)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if err := a.Service.WaitForJobs(ctx); err != nil {
					return err
				}
				return report(ctx, out, opts, a, job.ID, showFacts)
			}
			if !opts.jsonOutput {
				fmt.Fprintf(errOut, "\r%-9s %5.1f%%  %d/%d rows  %d errors",
					e.Status, e.ProgressPercentage, e.RecordsProcessed, e.RecordsTotal, e.ErrorCount)
				if e.Status.Terminal() {
					fmt.Fprintln(errOut)
				}
			}
		}
	}
}

// report prints the finished job, its errors and optionally its facts.
func report(ctx context.Context, out io.Writer, opts *options, a *app.App, id uuid.UUID, showFacts bool) error {
	job, err := a.Service.JobStatus(ctx, id)
	if err != nil {
		return err
	}
	rowErrors, err := a.Service.JobErrors(ctx, id)
	if err != nil {
		return err
	}
	var facts []model.FactRecord
	if showFacts {
		if facts, err = a.Service.ListFacts(ctx, id); err != nil {
			return err
		}
	}

	if opts.jsonOutput {
		if err := printJSON(out, struct {
			Job    *model.ProcessingJob    `json:"job"`
			Errors []model.ProcessingError `json:"errors"`
			Facts  []model.FactRecord      `json:"facts,omitempty"`
		}{job, rowErrors, facts}); err != nil {
			return err
		}
	} else {
		printJob(out, job)
		printRowErrors(out, rowErrors)
		if showFacts {
			printFacts(out, facts)
		}
	}

	if job.Status == model.JobFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
	}
	return nil
}

/* ----------------------------------------
	OUTPUT
---------------------------------------- */

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnalysis(w io.Writer, a *model.Analysis) {
	fmt.Fprintf(w, "Rows: %d  Columns: %d  Delimiter: %q  Encoding: %s  Header: %v\n\n",
		a.RowCount, a.ColumnCount, a.Delimiter, a.Encoding, a.HasHeader)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tHEADER\tTYPE\tNULLS\tDISTINCT\tSAMPLES")
	for _, c := range a.Columns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			c.Index, c.Header, c.InferredType, c.NullCount, c.DistinctCount, strings.Join(c.SampleValues, ", "))
	}
	tw.Flush()
}

func printMappings(w io.Writer, a *model.Analysis, mappings []model.DimensionMapping) {
	if len(mappings) == 0 {
		fmt.Fprintln(w, "No mapping suggestions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tHEADER\tDIMENSION\tCONFIDENCE")
	for _, m := range mappings {
		header := ""
		if m.ColumnIndex < len(a.Headers) {
			header = a.Headers[m.ColumnIndex]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\n", m.ColumnIndex, header, m.DimensionType, m.ConfidenceScore)
	}
	tw.Flush()
}

func printValidation(w io.Writer, v model.ValidationResult) {
	fmt.Fprintf(w, "\nValid: %v\n", v.IsValid)
	for _, e := range v.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warn := range v.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	for _, s := range v.Suggestions {
		fmt.Fprintf(w, "  suggestion: %s\n", s)
	}
}

func printJob(w io.Writer, job *model.ProcessingJob) {
	fmt.Fprintf(w, "Job %s: %s\n", job.ID, job.Status)
	fmt.Fprintf(w, "  processed: %d/%d  errors: %d\n", job.RecordsProcessed, job.RecordsTotal, job.ErrorCount)
	if job.QualityScore != nil {
		fmt.Fprintf(w, "  quality: %.3f\n", *job.QualityScore)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "  message: %s\n", job.ErrorMessage)
	}
}

func printRowErrors(w io.Writer, rowErrors []model.ProcessingError) {
	if len(rowErrors) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSEVERITY\tTYPE\tVALUE\tMESSAGE")
	for _, e := range rowErrors {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.RowNumber, e.Severity, e.ErrorType, e.RawValue, e.ErrorMessage)
	}
	tw.Flush()
}

func printFacts(w io.Writer, facts []model.FactRecord) {
	fmt.Fprintf(w, "\n%d fact records\n", len(facts))
	if len(facts) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tINDICATOR\tVALUE\tCONFIDENCE\tAGGREGATED")
	for _, f := range facts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%v\n",
			f.SourceRowNumber, f.IndicatorID, convert.FormatNumeric(f.Value), f.ConfidenceScore, f.IsAggregated)
	}
	tw.Flush()
}
