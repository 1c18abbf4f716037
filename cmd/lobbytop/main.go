// Command lobbytop is a terminal dashboard that polls a hostess server's
// admin endpoint and renders live instance occupancy (SPEC_FULL.md §4.M).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/relayforge/hostess/internal/wire"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the hostess admin endpoint")
	interval := flag.Duration("interval", time.Second, "poll interval")
	flag.Parse()

	if err := ui.Init(); err != nil {
		fmt.Println("lobbytop: init terminal:", err)
		return
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = "instances"
	table.Rows = [][]string{{"instance", "players"}}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowSeparator = true
	w, h := ui.TerminalDimensions()
	table.SetRect(0, 0, w, h)

	client := &http.Client{Timeout: 5 * time.Second}
	draw := func() {
		instances, err := fetchInstances(client, *addr)
		if err != nil {
			table.Rows = [][]string{{"instance", "players"}, {"error", err.Error()}}
			ui.Render(table)
			return
		}
		table.Rows = rowsFor(instances)
		ui.Render(table)
	}

	draw()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				table.SetRect(0, 0, payload.Width, payload.Height)
				ui.Render(table)
			}
		case <-ticker.C:
			draw()
		}
	}
}

func fetchInstances(client *http.Client, addr string) ([]wire.InstanceInfo, error) {
	resp, err := client.Get(addr + "/admin/instances")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var instances []wire.InstanceInfo
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func rowsFor(instances []wire.InstanceInfo) [][]string {
	rows := [][]string{{"instance", "players"}}
	for _, inst := range instances {
		rows = append(rows, []string{
			inst.ID.String(),
			fmt.Sprintf("%d/%d", inst.CurrentPlayers, inst.MaxPlayers),
		})
	}
	return rows
}
