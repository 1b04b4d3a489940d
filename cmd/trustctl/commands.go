package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/trustiq/trust-engine/internal/types"
)

// baselineLimit caps how many feature snapshots feed the cluster anomaly
// check.
const baselineLimit = 50

var (
	analysisFlag = &cli.StringFlag{
		Name:     "analysis",
		Usage:    "Path to an analysis-result JSON file",
		Required: true,
	}

	optionalAnalysisFlag = &cli.StringFlag{
		Name:  "analysis",
		Usage: "Path to an analysis-result JSON file",
	}

	subjectFlag = &cli.StringFlag{
		Name:  "subject",
		Usage: "Subject identifier for history and snapshot persistence",
	}

	requiredSubjectFlag = &cli.StringFlag{
		Name:     "subject",
		Usage:    "Subject identifier",
		Required: true,
	}

	eventsFlag = &cli.StringFlag{
		Name:  "events",
		Usage: "Path to an activity-event JSON file",
	}

	historyFileFlag = &cli.StringFlag{
		Name:  "history",
		Usage: "Path to a score-history JSON file (overrides --subject)",
	}

	recordsFlag = &cli.StringFlag{
		Name:  "records",
		Usage: "Path to a labeled-record JSON file (default: records from the store)",
	}

	targetFlag = &cli.StringFlag{
		Name:  "target",
		Usage: "Target field to train against",
		Value: "trust_score",
	}

	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits the number of results returned",
		Value: 100,
	}
)

var scoreCmd = &cli.Command{
	Name:  "score",
	Usage: "Compute the rule-based trust score for an analysis result",
	Flags: []cli.Flag{analysisFlag, subjectFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		var analysis types.AnalysisResult
		if err := readJSONFile(c.String(analysisFlag.Name), &analysis); err != nil {
			return err
		}

		score := app.Engine.ComputeTrustScore(analysis)

		if subject := c.String(subjectFlag.Name); subject != "" {
			if err := app.Store.AppendScore(c.Context, subject, score.Score); err != nil {
				return err
			}
			if err := app.Store.SaveSnapshot(c.Context, subject, app.Engine.ExtractFeatures(analysis)); err != nil {
				return err
			}
		}

		return writeOutput(app.Config.Format, score)
	},
}

var insightsCmd = &cli.Command{
	Name:  "insights",
	Usage: "Explain the trust score for an analysis result",
	Flags: []cli.Flag{analysisFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		var analysis types.AnalysisResult
		if err := readJSONFile(c.String(analysisFlag.Name), &analysis); err != nil {
			return err
		}

		score := app.Engine.ComputeTrustScore(analysis)
		return writeOutput(app.Config.Format, map[string]any{
			"score":    score,
			"insights": app.Engine.GenerateInsights(analysis, score),
		})
	},
}

var anomaliesCmd = &cli.Command{
	Name:  "anomalies",
	Usage: "Run the composite anomaly check over an analysis result or event history",
	Flags: []cli.Flag{optionalAnalysisFlag, eventsFlag, subjectFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		var events []types.ActivityEvent
		if path := c.String(eventsFlag.Name); path != "" {
			if err := readJSONFile(path, &events); err != nil {
				return err
			}
		}

		var vector []float64
		switch {
		case c.String(optionalAnalysisFlag.Name) != "":
			var analysis types.AnalysisResult
			if err := readJSONFile(c.String(optionalAnalysisFlag.Name), &analysis); err != nil {
				return err
			}
			vector = app.Engine.ExtractFeatures(analysis)
		case len(events) > 0:
			vector = app.Engine.BehaviorFeatures(events)
		default:
			return fmt.Errorf("either --analysis or --events is required")
		}

		var baseline [][]float64
		if subject := c.String(subjectFlag.Name); subject != "" {
			var err error
			baseline, err = app.Store.Snapshots(c.Context, subject, baselineLimit)
			if err != nil {
				return err
			}
		}

		report := app.Engine.DetectAnomaliesWithBaseline(vector, events, baseline)
		return writeOutput(app.Config.Format, report)
	},
}

var forecastCmd = &cli.Command{
	Name:  "forecast",
	Usage: "Project the next trust score from a subject's history",
	Flags: []cli.Flag{subjectFlag, historyFileFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		var history []float64
		if path := c.String(historyFileFlag.Name); path != "" {
			if err := readJSONFile(path, &history); err != nil {
				return err
			}
		} else if subject := c.String(subjectFlag.Name); subject != "" {
			var err error
			history, err = app.Store.ScoreHistory(c.Context, subject, 0)
			if err != nil {
				return err
			}
		} else {
			return fmt.Errorf("either --subject or --history is required")
		}

		return writeOutput(app.Config.Format, app.Engine.ForecastTrend(history))
	},
}

var trainCmd = &cli.Command{
	Name:  "train",
	Usage: "Train the ensemble from labeled records and persist the registry",
	Flags: []cli.Flag{recordsFlag, targetFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		records, err := loadRecords(c)
		if err != nil {
			return err
		}

		summary, err := app.Engine.TrainEnsemble(records, c.String(targetFlag.Name))
		if err != nil {
			return err
		}
		if err := app.Engine.PersistEnsemble(app.Config.RegistryPath); err != nil {
			return err
		}

		return writeOutput(app.Config.Format, summary)
	},
}

var predictCmd = &cli.Command{
	Name:  "predict",
	Usage: "Score an analysis result with the trained ensemble",
	Flags: []cli.Flag{analysisFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		var analysis types.AnalysisResult
		if err := readJSONFile(c.String(analysisFlag.Name), &analysis); err != nil {
			return err
		}

		if err := restoreRegistryIfPresent(app); err != nil {
			return err
		}

		prediction, err := app.Engine.PredictWithEnsemble(analysis)
		if err != nil {
			return err
		}
		return writeOutput(app.Config.Format, prediction)
	},
}

var updateCmd = &cli.Command{
	Name:  "update",
	Usage: "Fold new labeled records into the ensemble incrementally",
	Flags: []cli.Flag{recordsFlag, targetFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		records, err := loadRecords(c)
		if err != nil {
			return err
		}

		if err := restoreRegistryIfPresent(app); err != nil {
			return err
		}
		if err := app.Engine.UpdateEnsembleIncrementally(records, c.String(targetFlag.Name)); err != nil {
			return err
		}
		if err := app.Engine.PersistEnsemble(app.Config.RegistryPath); err != nil {
			return err
		}

		return writeOutput(app.Config.Format, app.Engine.EnsembleInfo())
	},
}

var modelsCmd = &cli.Command{
	Name:  "models",
	Usage: "Show the trained registry's members and performance",
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		if err := restoreRegistryIfPresent(app); err != nil {
			return err
		}
		return writeOutput(app.Config.Format, app.Engine.EnsembleInfo())
	},
}

var historyCmd = &cli.Command{
	Name:  "history",
	Usage: "List a subject's stored trust scores, oldest first",
	Flags: []cli.Flag{requiredSubjectFlag, limitFlag},
	Action: func(c *cli.Context) error {
		app := getConfig(c)

		scores, err := app.Store.ScoreHistory(c.Context, c.String(requiredSubjectFlag.Name), c.Int(limitFlag.Name))
		if err != nil {
			return err
		}
		return writeOutput(app.Config.Format, map[string]any{
			"subject": c.String(requiredSubjectFlag.Name),
			"scores":  scores,
		})
	},
}

// loadRecords reads labeled records from the given file, falling back to
// everything in the store.
func loadRecords(c *cli.Context) ([]types.TrainingRecord, error) {
	app := getConfig(c)

	if path := c.String(recordsFlag.Name); path != "" {
		var records []types.TrainingRecord
		if err := readJSONFile(path, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	return app.Store.ListRecords(c.Context, 0)
}

// restoreRegistryIfPresent loads the persisted registry when one exists;
// a missing file just leaves the pipeline untrained.
func restoreRegistryIfPresent(app *appConfig) error {
	if _, err := os.Stat(app.Config.RegistryPath); os.IsNotExist(err) {
		return nil
	}
	return app.Engine.RestoreEnsemble(app.Config.RegistryPath)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeOutput(format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(os.Stdout).Encode(v)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
