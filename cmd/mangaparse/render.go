package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"GoMangaParsers/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	purple      = lipgloss.Color("99")
	headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// printer は、コマンドの結果を表またはJSONで出力します。
type printer struct {
	w    io.Writer
	json bool
}

// result は v をJSONで、または表示用の関数 render で出力します。
func (p *printer) result(v any, render func()) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render()
	return nil
}

func (p *printer) table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(p.w, "結果はありません。")
		return
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(purple)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.w, t)
}

func (p *printer) field(label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", labelStyle.Render(label+":"), value)
}

func (p *printer) title(s string) {
	fmt.Fprintln(p.w, titleStyle.Render(s))
}

func workRows(works []model.Work) [][]string {
	rows := make([][]string, 0, len(works))
	for i, w := range works {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(w.Title, 50),
			w.State.String(),
			formatRating(w),
			w.URL,
		})
	}
	return rows
}

func chapterRows(chapters []model.Chapter) [][]string {
	rows := make([][]string, 0, len(chapters))
	for _, c := range chapters {
		rows = append(rows, []string{
			strconv.Itoa(c.Number),
			truncate(c.Name, 50),
			formatDate(c.UploadDate),
			c.Scanlator,
			c.URL,
		})
	}
	return rows
}

func formatRating(w model.Work) string {
	if !w.HasRating() {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", w.Rating*100)
}

func formatDate(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return time.UnixMilli(millis).UTC().Format("2006-01-02")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
