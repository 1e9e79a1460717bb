/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ponyo877/chatrelay/adminpb"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <user_a> <user_b>",
	Short: "Shows private messages between two users.",
	Long:  `Shows the stored private messages exchanged between two users, oldest first, in both directions.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		res, err := adminClient.GetHistory(ctx, adminpb.NewHistoryRequest(args[0], args[1]))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error calling GetHistory: %v\n", err)
			return
		}

		messages := res.GetFields()[adminpb.FieldMessages].GetListValue().GetValues()
		if len(messages) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No private messages between %s and %s.\n", args[0], args[1])
			return
		}
		for _, m := range messages {
			fmt.Fprintln(cmd.OutOrStdout(), formatHistoryLine(m))
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
