package main

import (
	"os"
	"strings"

	"github.com/immxrtalbeast/meetroom/internal/client"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <room-id>",
	Short: "Show who is in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms, err := client.NewRoomsClient(flagServer, nil)
		if err != nil {
			return err
		}
		info, err := rooms.WithToken(flagToken).Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("room " + args[0])
		t.AppendHeader(table.Row{"Participants", "Password", "Members"})
		t.AppendRow(table.Row{info.UserCount, yesNo(info.HasPassword), strings.Join(info.Users, "\n")})
		t.Render()
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
