package intake

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tvbridge/internal/logger"
)

const chartMaxPoints = 500

// handleBalanceChart renders the snapshot history as a standalone HTML
// page, one line each for wallet, available and used allocation.
func (r *Router) handleBalanceChart(c *gin.Context) {
	list, err := r.snapshots.ListRecent(c.Request.Context(), chartMaxPoints)
	if err != nil {
		logger.Errorf("[api] balance chart query failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// ListRecent returns newest first; the x axis wants oldest first.
	xAxis := make([]string, 0, len(list))
	wallet := make([]opts.LineData, 0, len(list))
	available := make([]opts.LineData, 0, len(list))
	used := make([]opts.LineData, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		snap := list[i]
		xAxis = append(xAxis, time.Unix(snap.CreatedAtUnix, 0).UTC().Format("01-02 15:04"))
		wallet = append(wallet, opts.LineData{Value: snap.TotalWalletBalance})
		available = append(available, opts.LineData{Value: snap.AvailableBalance})
		used = append(used, opts.LineData{Value: snap.UsedAllocationUSD})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:     types.ThemeWesteros,
			PageTitle: "Balance History",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Balance History",
			Subtitle: fmt.Sprintf("%d snapshots, USDT", len(list)),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Wallet", wallet, charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	line.AddSeries("Available", available, charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	line.AddSeries("Used allocation", used, charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Smooth: opts.Bool(true)}))

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := line.Render(c.Writer); err != nil {
		logger.Errorf("[api] balance chart render failed: %v", err)
	}
}
