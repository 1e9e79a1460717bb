/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows relay statistics.",
	Long:  `Shows the number of rooms, sessions and online users, the messages relayed so far and the server uptime.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		res, err := adminClient.GetStats(ctx, &emptypb.Empty{})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error calling GetStats: %v\n", err)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), formatStats(res))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
