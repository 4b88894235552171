package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/policy"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatUnix(v int64) string {
	return time.Unix(v, 0).UTC().Format(time.RFC3339)
}

func printNames(list nameList) {
	rows := make([][]string, 0, len(list.Names))
	for _, n := range list.Names {
		rows = append(rows, []string{n.Name, n.Owner})
	}
	printTable([]string{"NAME", "OWNER"}, rows)
}

func printNameDetails(d nameDetails) {
	rows := [][2]string{
		{"name", d.Name},
		{"owner", d.Owner},
		{"contenthash", d.Contenthash},
		{"created_at", formatTime(d.CreatedAt)},
		{"updated_at", formatTime(d.UpdatedAt)},
	}
	for _, k := range sortedKeys(d.Addresses) {
		rows = append(rows, [2]string{"addr[" + k + "]", d.Addresses[k]})
	}
	for _, k := range sortedKeys(d.Texts) {
		rows = append(rows, [2]string{"text[" + k + "]", d.Texts[k]})
	}
	printKV(rows)
}

func printPolicy(p policy.Policy) {
	expires := "never"
	if p.ExpiresAt != nil {
		expires = formatUnix(*p.ExpiresAt)
	}
	printKV([][2]string{
		{"allowed", strconv.FormatBool(p.Allowed)},
		{"max_trade", strconv.FormatInt(p.MaxTrade, 10)},
		{"tokens", strings.Join(p.Tokens, ",")},
		{"slippage_bps", strconv.Itoa(p.SlippageBps)},
		{"expires", expires},
	})
}

func printDecision(d policy.Decision) {
	if d.Valid {
		fmt.Println("allowed")
		return
	}
	fmt.Println("denied")
	for _, r := range d.Reasons {
		fmt.Printf("  - %s\n", r)
	}
}

func printLookup(r lookupResult) {
	printKV([][2]string{
		{"name", r.Name},
		{"function", r.Function},
		{"value", r.Value},
		{"signer", r.Signer},
		{"valid_until", formatUnix(int64(r.ValidUntil))},
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
