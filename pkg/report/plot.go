package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
)

const (
	chartWidth     = "100%"
	chartHeight    = "480px"
	labelMaxWidth  = 40
	labelRotate    = 30
	dataZoomEndPct = 100
)

// Dark palette shared by every chart on the page.
const (
	chartBackground = "#1e1e2e"
	chartText       = "#cdd6f4"
	chartTextMuted  = "#a6adc8"
	chartAxis       = "#6c7086"
	chartGrid       = "#313244"
	chartAccent     = "#89b4fa"
	chartWarn       = "#f38ba8"
)

// chartOpts builds themed go-echarts options.
type chartOpts struct{}

func (chartOpts) init() opts.Initialization {
	return opts.Initialization{Width: chartWidth, Height: chartHeight, BackgroundColor: chartBackground}
}

func (chartOpts) title(title, subtitle string) opts.Title {
	return opts.Title{
		Title:         title,
		Subtitle:      subtitle,
		Left:          "center",
		TitleStyle:    &opts.TextStyle{Color: chartText},
		SubtitleStyle: &opts.TextStyle{Color: chartTextMuted},
	}
}

func (chartOpts) xAxis(name string) opts.XAxis {
	return opts.XAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: chartTextMuted, Rotate: labelRotate},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: chartAxis}},
	}
}

func (chartOpts) yAxis(name string) opts.YAxis {
	return opts.YAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: chartAxis}},
		SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: chartGrid}},
	}
}

func (chartOpts) tooltip(trigger string) opts.Tooltip {
	return opts.Tooltip{Show: opts.Bool(true), Trigger: trigger}
}

func (chartOpts) grid() opts.Grid {
	return opts.Grid{Top: "20%", Bottom: "20%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}
}

func buildBar(co chartOpts, title, subtitle string, labels []string, name string, values []float64, color string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(co.init()),
		charts.WithTitleOpts(co.title(title, subtitle)),
		charts.WithTooltipOpts(co.tooltip("axis")),
		charts.WithXAxisOpts(co.xAxis("")),
		charts.WithYAxisOpts(co.yAxis(name)),
		charts.WithGridOpts(co.grid()),
	)

	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}

	bar.SetXAxis(labels)
	bar.AddSeries(name, data, charts.WithItemStyleOpts(opts.ItemStyle{Color: color}))

	return bar
}

// WritePlot renders the statistics as an HTML page of charts.
func WritePlot(w io.Writer, st *stats.Statistics) error {
	var co chartOpts

	page := components.NewPage()
	page.PageTitle = "scopestat report"
	page.SetLayout(components.PageFlexLayout)

	labels := make([]string, len(st.Distribution))
	counts := make([]float64, len(st.Distribution))

	for i, b := range st.Distribution {
		labels[i] = b.Range
		counts[i] = float64(b.Count)
	}

	page.AddCharts(buildBar(co, "Score distribution",
		fmt.Sprintf("%s variant, %d files", st.Variant, st.Files), labels, "files", counts, chartAccent))

	labels = make([]string, len(st.TopFiles))
	scores := make([]float64, len(st.TopFiles))

	for i, f := range st.TopFiles {
		labels[i] = terminal.TruncateLeft(f.Path, labelMaxWidth)
		scores[i] = f.Score
	}

	topFiles := buildBar(co, "Top files", "highest score first", labels, "score", scores, chartWarn)
	topFiles.SetGlobalOptions(charts.WithDataZoomOpts(
		opts.DataZoom{Type: "slider", Start: 0, End: dataZoomEndPct},
		opts.DataZoom{Type: "inside"},
	))
	page.AddCharts(topFiles)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(co.init()),
		charts.WithTitleOpts(co.title("Symbol kinds", fmt.Sprintf("%d symbols", st.Symbols))),
		charts.WithTooltipOpts(co.tooltip("item")),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Bottom: "0", TextStyle: &opts.TextStyle{Color: chartTextMuted}}),
	)

	slices := make([]opts.PieData, len(st.SymbolKinds))
	for i, g := range st.SymbolKinds {
		slices[i] = opts.PieData{Name: g.Key, Value: g.Count}
	}

	pie.AddSeries("kinds", slices)
	page.AddCharts(pie)

	if len(st.MetricNames) > 0 {
		labels = make([]string, len(st.MetricNames))
		issues := make([]float64, len(st.MetricNames))

		for i, g := range st.MetricNames {
			labels[i] = g.Key
			issues[i] = float64(g.Issues)
		}

		page.AddCharts(buildBar(co, "Violations by metric",
			fmt.Sprintf("%d violations, %d errors", st.Violations, st.Errors), labels, "violations", issues, chartWarn))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot page: %w", err)
	}

	return nil
}
