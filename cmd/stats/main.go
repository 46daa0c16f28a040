package main

import (
	"chat-match/observability"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	address := flag.String("addr", "http://localhost:5000", "Base URL of the pairing server")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout")
	flag.Parse()

	stats, err := fetch(*address, *timeout)
	if err != nil {
		log.Fatal("Error while reading stats: ", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	table.AppendBulk(rows(stats))
	table.Render()
}

func fetch(address string, timeout time.Duration) (observability.MonitoringStats, error) {
	var stats observability.MonitoringStats
	client := http.Client{Timeout: timeout}
	resp, err := client.Get(address + "/stats")
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("unexpected status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

func rows(stats observability.MonitoringStats) [][]string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	i := strconv.Itoa

	result := [][]string{
		{"Uptime", stats.Uptime},
		{"Registered connections", i(stats.RegisteredConnections)},
		{"Waiting", i(stats.Waiting)},
		{"Active sessions", i(stats.ActiveSessions)},
		{"Dispatch backlog", fmt.Sprintf("%d / %d", stats.DispatchBacklog, stats.DispatchCapacity)},
		{"Connections opened", u(stats.ConnectionsOpened)},
		{"Connections closed", u(stats.ConnectionsClosed)},
		{"Matches", u(stats.Matches)},
		{"Messages relayed", u(stats.MessagesRelayed)},
		{"Rejected events", u(stats.RejectedEvents)},
		{"Dropped notifications", u(stats.DroppedNotifications)},
	}

	reasons := lo.Keys(stats.Terminations)
	sort.Strings(reasons)
	for _, reason := range reasons {
		result = append(result, []string{"Terminated (" + reason + ")", u(stats.Terminations[reason])})
	}

	return append(result,
		[]string{"RSS", fmt.Sprintf("%.1f MB", float64(stats.RssBytes)/1024/1024)},
		[]string{"CPU", fmt.Sprintf("%.1f %%", stats.CpuPercent)},
		[]string{"Go heap", fmt.Sprintf("%d MB", stats.AllocMemMb)},
		[]string{"GC cycles", strconv.FormatUint(uint64(stats.NumGC), 10)},
	)
}
