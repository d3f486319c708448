package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/unixpickle/anycap/anyckpt"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "Print a summary of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	ckpt, err := anyckpt.Restore(args[0])
	if err != nil {
		return err
	}
	var params int
	for _, v := range ckpt.Decoder {
		params += v.Len()
	}
	data := [][]string{
		{anyckpt.FieldDataName, ckpt.DataName},
		{anyckpt.FieldEpoch, strconv.Itoa(ckpt.Epoch)},
		{"next_epoch", strconv.Itoa(ckpt.NextEpoch())},
		{anyckpt.FieldEpochsSinceImprovement, strconv.Itoa(ckpt.EpochsSinceImprovement)},
		{anyckpt.FieldScore, fmt.Sprintf("%.4f", ckpt.Score)},
		{anyckpt.FieldBestScore, fmt.Sprintf("%.4f", ckpt.BestScore)},
		{anyckpt.FieldDecoder, fmt.Sprintf("%d tensors, %d values", len(ckpt.Decoder), params)},
		{anyckpt.FieldDecoderOptimizer, optimizerSummary(ckpt.DecoderOptimizer)},
		{anyckpt.FieldEncoderOptimizer, optimizerSummary(ckpt.EncoderOptimizer)},
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"FIELD", "VALUE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()
	return nil
}

func optimizerSummary(data []byte) string {
	if data == nil {
		return "null"
	}
	return fmt.Sprintf("%d bytes", len(data))
}
