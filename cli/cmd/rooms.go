/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
)

// roomsCmd represents the rooms command
var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "Lists rooms and their members.",
	Long: `Lists every room in creation order, including the protected ones
(lobby, room1, room2), with their current members.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		res, err := adminClient.ListRooms(ctx, &emptypb.Empty{})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error calling ListRooms: %v\n", err)
			return
		}

		rows := toRoomRows(res)
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rooms.")
			return
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tUSERS\tMEMBERS")
		for _, row := range rows {
			name := row.name
			if row.protected {
				name += " *"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(row.members), strings.Join(row.members, ", "))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
