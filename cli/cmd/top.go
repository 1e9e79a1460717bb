package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/ponyo877/chatrelay/adminpb"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Shows a live dashboard of rooms and statistics",
	Long: `Polls the admin service and redraws statistics and the room table
in a tview-based interface. Press q or Ctrl+C to exit.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = time.Second
		}
		if err := runDashboard(adminClient, interval); err != nil {
			fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(topCmd)
	topCmd.Flags().DurationP("interval", "i", 2*time.Second, "Refresh interval")
}

// fillRoomsTable replaces the table contents with one row per room.
func fillRoomsTable(table *tview.Table, res *structpb.Struct) {
	table.Clear()
	for col, title := range []string{"ROOM", "USERS", "MEMBERS"} {
		table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	for i, row := range toRoomRows(res) {
		name := tview.NewTableCell(row.name)
		if row.protected {
			name.SetTextColor(tcell.ColorGreen)
		}
		table.SetCell(i+1, 0, name)
		table.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprint(len(row.members))).SetAlign(tview.AlignRight))
		table.SetCell(i+1, 2, tview.NewTableCell(strings.Join(row.members, ", ")).SetExpansion(1))
	}
}

func runDashboard(client adminpb.AdminServiceClient, interval time.Duration) error {
	app := tview.NewApplication()

	statsView := tview.NewTextView().SetDynamicColors(true)
	statsView.SetBorder(true).SetTitle(" chatrelay ")

	roomsTable := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	roomsTable.SetBorder(true).SetTitle(" rooms ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 7, 0, false).
		AddItem(roomsTable, 0, 1, true)

	app.SetRoot(flex, true).SetFocus(roomsTable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresh := func() {
		rctx, rcancel := context.WithTimeout(ctx, interval)
		defer rcancel()

		stats, statsErr := client.GetStats(rctx, &emptypb.Empty{})
		rooms, roomsErr := client.ListRooms(rctx, &emptypb.Empty{})
		app.QueueUpdateDraw(func() {
			statsView.Clear()
			switch {
			case statsErr != nil:
				fmt.Fprintf(statsView, "[red]Error calling GetStats: %v", statsErr)
			default:
				fmt.Fprint(statsView, formatStats(stats))
			}
			if roomsErr == nil {
				fillRoomsTable(roomsTable, rooms)
			}
		})
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' {
			cancel()
			app.Stop()
			return nil
		}
		return event
	})

	return app.Run()
}
