package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var transformInput string

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Normalize raw artifacts into NDJSON batches",
	RunE: func(_ *cobra.Command, _ []string) error {
		input := transformInput
		if input == "" {
			input = pipe.Config.Data.RawDir
		}
		outputs, err := pipe.Transformer().Transform(input)
		if err != nil {
			return err
		}
		pipe.Logger.Info("transform complete", zap.Strings("outputs", outputs))
		return nil
	},
}

func init() {
	transformCmd.Flags().StringVar(&transformInput, "input", "",
		"raw artifact file or directory (defaults to the configured raw dir)")
	rootCmd.AddCommand(transformCmd)
}
