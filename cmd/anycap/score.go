package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/unixpickle/anycap/anyeval"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score HYPOTHESES",
		Short: "Score a hypotheses file against ground-truth captions",
		Args:  cobra.ExactArgs(1),
		RunE:  scoreHandler,
	}
	cmd.Flags().String("gts", "val_gts.json", "ground-truth captions")
	return cmd
}

func scoreHandler(cmd *cobra.Command, args []string) error {
	gtsPath, _ := cmd.Flags().GetString("gts")
	truth, err := anyeval.LoadGroundTruth(gtsPath)
	if err != nil {
		return err
	}
	hyps, err := anyeval.LoadHypotheses(args[0])
	if err != nil {
		return err
	}
	res, err := anyeval.Score(hyps, &anyeval.CIDEr{Truth: truth}, map[string]anyeval.Scorer{
		"BLEU-1": &anyeval.BLEU{Truth: truth, N: 1},
		"BLEU-4": &anyeval.BLEU{Truth: truth},
	})
	if err != nil {
		return err
	}

	data := [][]string{{"CIDEr", fmt.Sprintf("%.4f", res.Score)}}
	var names []string
	for name := range res.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, []string{name, fmt.Sprintf("%.4f", res.Extra[name])})
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"METRIC", "SCORE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()
	return nil
}
