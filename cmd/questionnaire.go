package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var questionnaireCmd = &cobra.Command{
	Use:   "questionnaire [file]",
	Short: "Answer every question in a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuestionnaire(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(questionnaireCmd)
}

func runQuestionnaire(parent context.Context, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied CLI argument
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, logger, err := setupApp(parent)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	filename := filepath.Base(path)
	results, err := a.Questionnaire.AnswerAll(parent, filename, data)
	if err != nil {
		return fmt.Errorf("answering questionnaire: %w", err)
	}

	for _, qa := range results {
		fmt.Printf("%d. %s\n", qa.Question.Number, qa.Question.Text)
		fmt.Printf("   %s\n\n", qa.Answer.Text)
	}

	if id, err := a.History.SaveQuestionnaire(parent, filename, results); err != nil {
		logger.Warn("saving questionnaire session failed", "error", err)
	} else {
		fmt.Printf("Saved session %s\n", id)
	}
	return nil
}
