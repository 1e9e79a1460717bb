/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ponyo877/chatrelay/adminpb"
	"google.golang.org/protobuf/types/known/structpb"
)

type roomRow struct {
	name      string
	protected bool
	members   []string
}

func formatStats(res *structpb.Struct) string {
	f := res.GetFields()
	uptime := time.Duration(f[adminpb.FieldUptimeSeconds].GetNumberValue() * float64(time.Second)).Round(time.Second)

	var b strings.Builder
	fmt.Fprintf(&b, "Active rooms:    %d\n", int64(f[adminpb.FieldActiveRooms].GetNumberValue()))
	fmt.Fprintf(&b, "Active sessions: %d\n", int64(f[adminpb.FieldActiveSessions].GetNumberValue()))
	fmt.Fprintf(&b, "Online users:    %d\n", int64(f[adminpb.FieldOnlineUsers].GetNumberValue()))
	fmt.Fprintf(&b, "Messages:        %d\n", int64(f[adminpb.FieldTotalMessages].GetNumberValue()))
	fmt.Fprintf(&b, "Uptime:          %s\n", uptime)
	return b.String()
}

func toRoomRows(res *structpb.Struct) []roomRow {
	values := res.GetFields()[adminpb.FieldRooms].GetListValue().GetValues()
	rows := make([]roomRow, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		row := roomRow{
			name:      f[adminpb.FieldName].GetStringValue(),
			protected: f[adminpb.FieldProtected].GetBoolValue(),
		}
		for _, m := range f[adminpb.FieldMembers].GetListValue().GetValues() {
			row.members = append(row.members, m.GetStringValue())
		}
		rows = append(rows, row)
	}
	return rows
}

func formatHistoryLine(v *structpb.Value) string {
	f := v.GetStructValue().GetFields()
	stamp := f[adminpb.FieldTimestamp].GetStringValue()
	if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
		stamp = t.Local().Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("[%s] %s -> %s: %s",
		stamp,
		f[adminpb.FieldSender].GetStringValue(),
		f[adminpb.FieldRecipient].GetStringValue(),
		f[adminpb.FieldBody].GetStringValue())
}
