package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ploston/dael/internal/style"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate workflow syntax and semantics",
	Long: `Validate DAEL workflow files for YAML syntax, schema compliance, and the
semantic checks spec.md §4.4 names: unique step IDs, depends_on naming
only earlier steps, and valid retry ranges. Tool names and step timeouts
are not checked.

Examples:
  dael validate workflow.yaml                   # Validate a single file
  dael validate *.yaml                          # Validate multiple files
  dael validate --recursive ./workflows         # Validate a directory recursively
  dael validate --output json workflow.yaml     # JSON output for CI/CD`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateWorkflows(cmd, args)
	},
}

var (
	validateRecursive bool
	validateShowAll   bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVarP(&validateRecursive, "recursive", "r", false, "recursively validate files in directories")
	validateCmd.Flags().BoolVar(&validateShowAll, "show-all", false, "show all validation results, including successful ones")
}

// ValidationResult is one file's validation outcome.
type ValidationResult struct {
	File     string        `json:"file" yaml:"file"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ValidationSummary is the batch result across every file given on the
// command line.
type ValidationSummary struct {
	Total    int                `json:"total" yaml:"total"`
	Valid    int                `json:"valid" yaml:"valid"`
	Invalid  int                `json:"invalid" yaml:"invalid"`
	Duration time.Duration      `json:"total_duration_ms" yaml:"total_duration_ms"`
	Results  []ValidationResult `json:"results" yaml:"results"`
}

func validateWorkflows(cmd *cobra.Command, args []string) error {
	start := time.Now()
	w := cmd.OutOrStdout()

	files, err := collectWorkflowFiles(args, validateRecursive)
	if err != nil {
		style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to collect files: %v", err))
		return err
	}

	if len(files) == 0 {
		style.Warning(w, "no workflow files found to validate")
		return nil
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		result := validateSingleFile(file)
		results = append(results, result)

		if !viper.GetBool("quiet") && viper.GetString("output") == "text" && result.Valid && validateShowAll {
			style.Success(w, fmt.Sprintf("%s (%v)", file, result.Duration))
		}
	}

	summary := ValidationSummary{
		Total:    len(results),
		Duration: time.Since(start),
		Results:  results,
	}
	for _, result := range results {
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(w, summary)
	case "yaml":
		style.PrintYAML(w, summary)
	default:
		printValidationSummary(w, summary)
	}

	if summary.Invalid > 0 {
		return fmt.Errorf("validation failed for %d of %d workflow(s)", summary.Invalid, summary.Total)
	}
	return nil
}

func validateSingleFile(filename string) ValidationResult {
	start := time.Now()
	result := ValidationResult{File: filename, Valid: true}

	_, err := workflow.ParseFile(filename)
	result.Duration = time.Since(start)
	if err != nil {
		result.Valid = false
		if verrs, ok := err.(workflow.ValidationErrors); ok {
			for _, verr := range verrs {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", verr.Path, verr.Message))
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	log.Debug().Str("file", filename).Bool("valid", result.Valid).Dur("duration", result.Duration).Msg("validated workflow file")
	return result
}

func collectWorkflowFiles(args []string, recursive bool) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			if !recursive {
				return nil, fmt.Errorf("%s is a directory, use --recursive to validate directories", arg)
			}
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if isWorkflowFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error walking directory %s: %w", arg, err)
			}
		} else if isWorkflowFile(arg) {
			files = append(files, arg)
		} else {
			return nil, fmt.Errorf("%s is not a YAML workflow file (.yaml or .yml)", arg)
		}
	}

	return files, nil
}

func isWorkflowFile(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".yaml" || ext == ".yml"
}

func printValidationSummary(w io.Writer, summary ValidationSummary) {
	if viper.GetBool("quiet") {
		return
	}

	fmt.Fprintf(w, "\n")
	if summary.Invalid == 0 {
		style.Success(w, fmt.Sprintf("all %d workflow(s) are valid", summary.Total))
		return
	}
	style.Error(w, fmt.Sprintf("%d of %d workflow(s) failed validation", summary.Invalid, summary.Total))

	for _, result := range summary.Results {
		if result.Valid {
			continue
		}
		fmt.Fprintf(w, "\n%s %s\n", style.ErrorIcon(), style.FileStyle.Render(result.File))
		for _, msg := range result.Errors {
			fmt.Fprintf(w, "  %s\n", style.ErrorStyle.Render(msg))
		}
	}
}
