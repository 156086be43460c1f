package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/mjsandells/snowschool2024/internal/validation"
)

// ExportValidationCSV writes validation records to a CSV file for plotting
// outside the tool.
func ExportValidationCSV(filename string, records []validation.Record) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Time", "Observed", "Simulated", "Retrieved", "Residual_Sim", "Residual_Ret"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		record := []string{
			r.Time.Format(time.RFC3339),
			fmt.Sprintf("%.4f", r.Observed),
			fmt.Sprintf("%.4f", r.Simulated),
			fmt.Sprintf("%.4f", r.Retrieved),
			fmt.Sprintf("%.4f", r.ResidualSim),
			fmt.Sprintf("%.4f", r.ResidualRet),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

// ExportSensitivityCSV writes a ranked sensitivity sweep to a CSV file.
func ExportSensitivityCSV(filename string, ranked []validation.Sensitivity) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Rank", "Parameter", "Explained_Variance", "Baseline_RMSE", "Perturbed_RMSE"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, s := range ranked {
		record := []string{
			fmt.Sprintf("%d", i+1),
			s.Parameter,
			fmt.Sprintf("%.4f", s.ExplainedVariance),
			fmt.Sprintf("%.4f", s.BaselineRMSE),
			fmt.Sprintf("%.4f", s.PerturbedRMSE),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
