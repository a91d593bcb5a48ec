package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func writeSummaries(w io.Writer, summaries []ranking.Summary, failures []types.RecalculationFailure) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			strconv.FormatInt(s.ConfigurationID, 10),
			strconv.Itoa(s.ListsWeighted),
			strconv.Itoa(s.ListsSkipped),
			strconv.Itoa(s.ListsAggregated),
			strconv.Itoa(s.ItemsRanked),
			s.Duration.String(),
		})
	}
	if err := writeTable(w, []string{"Configuration", "Weighted", "Skipped", "Aggregated", "Items", "Took"}, rows); err != nil {
		return err
	}
	for _, f := range failures {
		if _, err := fmt.Fprintf(w, "configuration %d failed: %s\n", f.ConfigurationID, f.Error); err != nil {
			return err
		}
	}
	return nil
}

func writeEntries(w io.Writer, entries []types.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			strconv.FormatInt(e.ItemID, 10),
			e.Title,
			formatScore(e.Score),
		})
	}
	return writeTable(w, []string{"Rank", "Item", "Title", "Score"}, rows)
}

func writeListEntries(w io.Writer, lists []types.ListEntry) error {
	rows := make([][]string, 0, len(lists))
	for _, l := range lists {
		weight := "-"
		if l.Weight != nil {
			weight = formatScore(*l.Weight)
		}
		rows = append(rows, []string{
			strconv.FormatInt(l.ListID, 10),
			l.Name,
			string(l.Status),
			weight,
		})
	}
	return writeTable(w, []string{"List", "Name", "Status", "Weight"}, rows)
}
