package quality

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"

	"github.com/gmaffy/genome-batch/utils"
)

const (
	ReportTSV  = "busco_summary.tsv"
	ReportHTML = "busco_summary.html"
)

// BuscoSummary is one genome's completeness, in percent of the lineage markers.
type BuscoSummary struct {
	Genome     string  `dataframe:"genome"`
	Lineage    string  `dataframe:"lineage"`
	Complete   float64 `dataframe:"complete"`
	Single     float64 `dataframe:"single"`
	Duplicated float64 `dataframe:"duplicated"`
	Fragmented float64 `dataframe:"fragmented"`
	Missing    float64 `dataframe:"missing"`
	Markers    int     `dataframe:"markers"`
	OneLine    string  `dataframe:"summary"`
}

type buscoJSON struct {
	LineageDataset struct {
		Name string `json:"name"`
	} `json:"lineage_dataset"`
	Results map[string]any `json:"results"`
}

// ParseSummary reads one short_summary JSON written by BUSCO 5.
func ParseSummary(r io.Reader) (BuscoSummary, error) {
	var raw buscoJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return BuscoSummary{}, err
	}
	if raw.Results == nil {
		return BuscoSummary{}, fmt.Errorf("summary has no results section")
	}
	num := func(keys ...string) float64 {
		for _, k := range keys {
			if v, ok := raw.Results[k].(float64); ok {
				return v
			}
		}
		return 0
	}
	line, _ := raw.Results["one_line_summary"].(string)
	return BuscoSummary{
		Lineage:    raw.LineageDataset.Name,
		Complete:   num("Complete percentage", "Complete"),
		Single:     num("Single copy percentage", "Single copy"),
		Duplicated: num("Multi copy percentage", "Multi copy"),
		Fragmented: num("Fragmented percentage", "Fragmented"),
		Missing:    num("Missing percentage", "Missing"),
		Markers:    int(num("n_markers")),
		OneLine:    line,
	}, nil
}

// GenomeFromSummaryName strips the BUSCO prefix and the .faa/.json suffixes.
func GenomeFromSummaryName(name, prefix string) string {
	g := strings.TrimPrefix(name, prefix)
	g = strings.TrimSuffix(g, ".json")
	return strings.TrimSuffix(g, ".faa")
}

func (s *BuscoStage) ReadSummaries() ([]BuscoSummary, error) {
	paths, err := filepath.Glob(filepath.Join(s.JSONDir(), "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []BuscoSummary
	for _, p := range paths {
		f, oErr := os.Open(p)
		if oErr != nil {
			return nil, oErr
		}
		sum, pErr := ParseSummary(f)
		f.Close()
		if pErr != nil {
			s.Log.Error("Failed to parse BUSCO summary", "file", p, "error", pErr)
			continue
		}
		sum.Genome = GenomeFromSummaryName(filepath.Base(p), s.SummaryPrefix())
		out = append(out, sum)
	}
	return out, nil
}

// CompletenessStats is mean, standard deviation, median and minimum of Complete.
type CompletenessStats struct {
	Mean, StdDev, Median, Min float64
}

func Completeness(summaries []BuscoSummary) CompletenessStats {
	if len(summaries) == 0 {
		return CompletenessStats{}
	}
	x := make([]float64, len(summaries))
	for i, s := range summaries {
		x[i] = s.Complete
	}
	sort.Float64s(x)
	cs := CompletenessStats{
		Mean:   stat.Mean(x, nil),
		Median: stat.Quantile(0.5, stat.Empirical, x, nil),
		Min:    x[0],
	}
	if len(x) > 1 {
		cs.StdDev = stat.StdDev(x, nil)
	}
	return cs
}

// Report writes the summary table and chart into OutDir.
func (s *BuscoStage) Report() error {
	summaries, err := s.ReadSummaries()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		s.Log.Warn("No BUSCO summaries to report", "dir", s.JSONDir())
		return nil
	}

	cs := Completeness(summaries)
	s.Log.Info("BUSCO completeness",
		"genomes", len(summaries),
		"mean", fmt.Sprintf("%.2f", cs.Mean),
		"sd", fmt.Sprintf("%.2f", cs.StdDev),
		"median", fmt.Sprintf("%.2f", cs.Median),
		"min", fmt.Sprintf("%.2f", cs.Min))

	tsvPath := filepath.Join(s.OutDir, ReportTSV)
	if err := utils.CreateFile(tsvPath, func(w io.Writer) error { return WriteSummaryTSV(w, summaries) }); err != nil {
		return err
	}
	htmlPath := filepath.Join(s.OutDir, ReportHTML)
	return utils.CreateFile(htmlPath, func(w io.Writer) error { return RenderChart(w, summaries) })
}

func WriteSummaryTSV(w io.Writer, summaries []BuscoSummary) error {
	df := dataframe.LoadStructs(summaries)
	if df.Err != nil {
		return df.Err
	}
	df = df.Arrange(dataframe.Sort("genome"))
	for _, rec := range df.Records() {
		if _, err := fmt.Fprintln(w, strings.Join(rec, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// RenderChart draws a stacked bar per genome: single, duplicated, fragmented, missing.
func RenderChart(w io.Writer, summaries []BuscoSummary) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, ChartID: "busco_summary"}),
		charts.WithTitleOpts(opts.Title{Title: "BUSCO assessment", Subtitle: summaries[0].Lineage}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% BUSCOs", Max: 100}),
	)

	genomes := make([]string, len(summaries))
	var single, dup, frag, miss []opts.BarData
	for i, s := range summaries {
		genomes[i] = s.Genome
		single = append(single, opts.BarData{Value: s.Single})
		dup = append(dup, opts.BarData{Value: s.Duplicated})
		frag = append(frag, opts.BarData{Value: s.Fragmented})
		miss = append(miss, opts.BarData{Value: s.Missing})
	}
	bar.SetXAxis(genomes).
		AddSeries("Complete (single)", single).
		AddSeries("Complete (duplicated)", dup).
		AddSeries("Fragmented", frag).
		AddSeries("Missing", miss).
		SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "busco"}))

	page := components.NewPage()
	page.AddCharts(bar)
	return page.Render(w)
}
