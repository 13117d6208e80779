package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"healthmate/internal/alerts"
	"healthmate/internal/models"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one reading offline",
	Long: `Evaluate a single reading against threshold rules without storing it or
sending any alert. Rules come from a YAML file; keys that are left out keep their defaults.

Example thresholds file:
  blood_pressure:
    min_systolic: 90
    max_systolic: 130
  fasting:
    min: 70
    max: 100

Examples:
  healthmate check --kind blood_pressure --systolic 150 --diastolic 95
  healthmate check --kind blood_sugar --level 65 --context fasting
  healthmate check --thresholds rules.yaml --kind blood_sugar --level 150 --context "after meal"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules := models.DefaultThresholdRules()
		if path, _ := cmd.Flags().GetString("thresholds"); path != "" {
			loaded, err := loadThresholds(path)
			if err != nil {
				return err
			}
			rules = loaded
		}

		in := models.ReadingInput{UserID: "cli"}
		in.Kind, _ = cmd.Flags().GetString("kind")
		in.Context, _ = cmd.Flags().GetString("context")
		for name, dst := range map[string]**int{
			"systolic":  &in.Systolic,
			"diastolic": &in.Diastolic,
			"level":     &in.Level,
		} {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetInt(name)
				*dst = &v
			}
		}

		_, err := runCheck(cmd.OutOrStdout(), in, rules)
		return err
	},
}

func init() {
	checkCmd.Flags().String("thresholds", "", "YAML file with threshold rules")
	checkCmd.Flags().String("kind", "", "blood_pressure or blood_sugar")
	checkCmd.Flags().Int("systolic", 0, "Systolic pressure (mmHg)")
	checkCmd.Flags().Int("diastolic", 0, "Diastolic pressure (mmHg)")
	checkCmd.Flags().Int("level", 0, "Blood sugar level (mg/dL)")
	checkCmd.Flags().String("context", "", "Fasting or After Meal")
	checkCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(checkCmd)
}

// loadThresholds overlays a YAML file on the default rules
func loadThresholds(path string) (models.ThresholdRules, error) {
	rules := models.DefaultThresholdRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse thresholds: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid thresholds in %s: %w", path, err)
	}
	return rules, nil
}

// runCheck evaluates in against rules and prints the verdict
func runCheck(out io.Writer, in models.ReadingInput, rules models.ThresholdRules) (alerts.Verdict, error) {
	m, err := in.Measurement(time.Now())
	if err != nil {
		if errors.Is(err, models.ErrMissingContext) {
			return alerts.Verdict{}, fmt.Errorf("%w (use --context fasting or --context \"after meal\")", err)
		}
		return alerts.Verdict{}, err
	}

	v, err := alerts.Evaluate(m, rules)
	if err != nil {
		return v, err
	}

	if !v.OutOfRange {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(out, "%s %s %s\n", green("✓"), m.Kind().Label(), v.Describe())
		return v, nil
	}

	red := color.New(color.FgRed, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %s %s\n", red("✗"), m.Kind().Label(), color.RedString(v.FormattedValue+" is out of range"))
	for _, viol := range v.Violations {
		fmt.Fprintf(out, "  - %s\n", viol.String())
	}
	return v, nil
}
