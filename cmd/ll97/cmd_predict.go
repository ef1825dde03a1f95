package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ll97dash/building"
	"ll97dash/cascade"
	"ll97dash/report"
)

var (
	predictPropertyType string
	predictYear         int
	predictEnergyStar   float64
	predictSiteEUI      float64
	predictGHG          float64
	predictJSON         bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score one building from the command line",
	Long: `Assembles a building record from the flags and runs the fined classifier.
The paid classifier runs only when the building is predicted to be fined.`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictPropertyType, "property-type", building.DefaultPropertyType, "Primary property type")
	f.IntVar(&predictYear, "year", building.DefaultYear, "Calendar year of the report")
	f.Float64Var(&predictEnergyStar, "energy-star", building.DefaultEnergyStarScore, "ENERGY STAR score (1-100)")
	f.Float64Var(&predictSiteEUI, "site-eui", building.DefaultSiteEUI, "Site EUI (kBtu/ft²)")
	f.Float64Var(&predictGHG, "ghg", building.DefaultGHGEmissions, "Total GHG emissions (metric tons CO2e)")
	f.BoolVar(&predictJSON, "json", false, "Print the result as JSON")
}

type predictOutput struct {
	Record  building.BuildingRecord  `json:"record"`
	Result  cascade.PredictionResult `json:"result"`
	Banners []report.Banner          `json:"banners"`
}

func runPredict(cmd *cobra.Command, _ []string) error {
	eng, err := loadEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	raw := building.RawFromValues(predictPropertyType, predictYear, predictEnergyStar, predictSiteEUI, predictGHG)
	record, err := eng.assembler.Assemble(raw)
	if err != nil {
		return err
	}
	result, err := eng.predictor.Predict(record)
	if err != nil {
		logger.Error("prediction failed", zap.Stringer("record", record), zap.Error(err))
		return err
	}

	out := predictOutput{Record: record, Result: result, Banners: report.Banners(result)}
	if predictJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printBanners(cmd.OutOrStdout(), out)
	return nil
}

func printBanners(w io.Writer, out predictOutput) {
	r := lipgloss.NewRenderer(w)
	colors := map[report.Level]lipgloss.Color{
		report.LevelSuccess: lipgloss.Color("#04B575"),
		report.LevelWarning: lipgloss.Color("#FFB347"),
		report.LevelError:   lipgloss.Color("#FF5F87"),
	}
	label := r.NewStyle().Bold(true).Width(20)
	value := r.NewStyle()

	for _, cell := range out.Record.Row() {
		fmt.Fprintln(w, label.Render(cell.Column)+value.Render(cellText(cell)))
	}
	fmt.Fprintln(w)
	for _, b := range out.Banners {
		fmt.Fprintln(w, r.NewStyle().Bold(true).Foreground(colors[b.Level]).Render(b.Text))
	}
}

func cellText(c building.Cell) string {
	if c.Categorical {
		return c.Text
	}
	return strconv.FormatFloat(c.Number, 'f', -1, 64)
}
