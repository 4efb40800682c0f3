package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wallwatch/internal/config"
	"wallwatch/internal/streamclient"
)

var defaultDoctorSymbols = []string{"SBER"}

type checkResult struct {
	name    string
	ok      bool
	message string
}

func newDoctorCmd() *cobra.Command {
	var symbolsCSV string
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight checks: env, config, CA bundle, instrument resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := defaultDoctorSymbols
			if symbolsCSV != "" {
				symbols = splitSymbols(symbolsCSV)
			}
			report, fatal := buildDoctorReport(cmd.Context(), configPath, symbols)
			printReport(report)
			if fatal {
				return fmt.Errorf("doctor: one or more checks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbolsCSV, "symbols", "", "comma-separated symbols to test-resolve")
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

func buildDoctorReport(ctx context.Context, configPath string, symbols []string) ([]checkResult, bool) {
	var report []checkResult
	fatal := false

	env := config.LoadEnvSettings()
	missing := config.MissingRequiredEnv(env)
	if len(missing) == 0 {
		report = append(report, checkResult{"env", true, "required env vars present"})
	} else {
		report = append(report, checkResult{"env", false, fmt.Sprintf("missing: %v", missing)})
		fatal = true
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		report = append(report, checkResult{"config", false, err.Error()})
		fatal = true
	} else {
		report = append(report, checkResult{"config", true, fmt.Sprintf("%d symbols configured", len(cfg.Symbols))})
	}

	if _, err := config.ResolveCABundle(env); err != nil {
		report = append(report, checkResult{"ca_bundle", false, err.Error()})
		fatal = true
	} else {
		report = append(report, checkResult{"ca_bundle", true, "resolved (or using system trust store)"})
	}

	stub := streamclient.NewStub()
	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resolved, failures, err := stub.ResolveInstruments(resolveCtx, symbols)
	switch {
	case err != nil:
		report = append(report, checkResult{"resolve", false, err.Error()})
		fatal = true
	case len(failures) > 0:
		report = append(report, checkResult{"resolve", false, fmt.Sprintf("unresolved: %v", failures)})
		fatal = true
	default:
		report = append(report, checkResult{"resolve", true, fmt.Sprintf("resolved %d instruments", len(resolved))})
	}

	return report, fatal
}

func printReport(report []checkResult) {
	for _, r := range report {
		status := "OK"
		if !r.ok {
			status = "FAIL"
		}
		fmt.Printf("%s\t%s\t%s\n", status, r.name, r.message)
	}
}
