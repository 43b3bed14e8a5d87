package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/routing"
	"github.com/bobmcallan/signalmesh/internal/services/screener"
)

// registerTools registers the market data tools against a tenant's router.
func registerTools(s *mcpserver.MCPServer, router *routing.Router, scr *screener.Service, logger *common.Logger) {
	s.AddTool(createGetVersionTool(), handleGetVersion())
	s.AddTool(createGetQuotesTool(), handleGetQuotes(router, logger))
	s.AddTool(createGetBarsTool(), handleGetBars(router, logger))
	s.AddTool(createDiscoverMoversTool(), handleDiscoverMovers(router, logger))
	s.AddTool(createCompanyProfileTool(), handleCompanyProfile(router, logger))
	s.AddTool(createFinancialMetricsTool(), handleFinancialMetrics(router, logger))
	s.AddTool(createEarningsCalendarTool(), handleEarningsCalendar(router, logger))
	s.AddTool(createGetNewsTool(), handleGetNews(router, logger))
	s.AddTool(createScreenCandidatesTool(), handleScreenCandidates(router, scr, logger))
	s.AddTool(createExplainRoutingTool(), handleExplainRouting(router))
}

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the SignalMesh server version and status. Use this to verify connectivity."),
	)
}

// createGetQuotesTool returns the get_quotes tool definition
func createGetQuotesTool() mcp.Tool {
	return mcp.NewTool("get_quotes",
		mcp.WithDescription("Get the latest bid/ask/trade quotes for one or more symbols."),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Required(),
			mcp.Description("Symbols to quote (e.g., ['AAPL', 'TSLA'])"),
		),
	)
}

// createGetBarsTool returns the get_bars tool definition
func createGetBarsTool() mcp.Tool {
	return mcp.NewTool("get_bars",
		mcp.WithDescription("Get historical OHLCV bars for one or more symbols."),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Required(),
			mcp.Description("Symbols to fetch bars for"),
		),
		mcp.WithString("timeframe",
			mcp.Description("Bar timeframe: 1m, 5m, 15m, 1h, 1d (default: 1d)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum bars per symbol (default: 30, max: 500)"),
		),
	)
}

// createDiscoverMoversTool returns the discover_movers tool definition
func createDiscoverMoversTool() mcp.Tool {
	return mcp.NewTool("discover_movers",
		mcp.WithDescription("Discover the day's top market movers (gainers and losers)."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum movers to return (default: 10, max: 50)"),
		),
	)
}

// createCompanyProfileTool returns the get_company_profile tool definition
func createCompanyProfileTool() mcp.Tool {
	return mcp.NewTool("get_company_profile",
		mcp.WithDescription("Get the company profile (name, sector, industry, description) for a symbol."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock symbol (e.g., 'AAPL')"),
		),
	)
}

// createFinancialMetricsTool returns the get_financial_metrics tool definition
func createFinancialMetricsTool() mcp.Tool {
	return mcp.NewTool("get_financial_metrics",
		mcp.WithDescription("Get key financial metrics and ratios for a symbol."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock symbol (e.g., 'AAPL')"),
		),
	)
}

// createEarningsCalendarTool returns the get_earnings_calendar tool definition
func createEarningsCalendarTool() mcp.Tool {
	return mcp.NewTool("get_earnings_calendar",
		mcp.WithDescription("Get upcoming earnings announcements within a window of days."),
		mcp.WithNumber("days",
			mcp.Description("Days ahead to include (default: 7, max: 30)"),
		),
	)
}

// createGetNewsTool returns the get_news tool definition
func createGetNewsTool() mcp.Tool {
	return mcp.NewTool("get_news",
		mcp.WithDescription("Get recent news headlines for one or more symbols."),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Required(),
			mcp.Description("Symbols to fetch news for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum headlines per symbol (default: 5, max: 20)"),
		),
	)
}

// createScreenCandidatesTool returns the screen_candidates tool definition
func createScreenCandidatesTool() mcp.Tool {
	return mcp.NewTool("screen_candidates",
		mcp.WithDescription("Screen the market for candidates matching price, volume, and sector criteria. Uses the provider's native screener when available, otherwise filters the day's movers."),
		mcp.WithNumber("min_price",
			mcp.Description("Minimum last price"),
		),
		mcp.WithNumber("max_price",
			mcp.Description("Maximum last price"),
		),
		mcp.WithNumber("min_volume",
			mcp.Description("Minimum daily volume"),
		),
		mcp.WithString("sector",
			mcp.Description("Sector filter (e.g., 'Technology')"),
		),
		mcp.WithNumber("min_market_cap",
			mcp.Description("Minimum market capitalization"),
		),
	)
}

// createExplainRoutingTool returns the explain_routing tool definition
func createExplainRoutingTool() mcp.Tool {
	return mcp.NewTool("explain_routing",
		mcp.WithDescription("Explain how this tenant's requests are routed: configured providers, fail-over order, circuit breaker state, and caching."),
	)
}

// handleGetVersion implements the get_version tool
func handleGetVersion() mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("SignalMesh Server\nVersion: %s\nBuild: %s\nCommit: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return textResult(result), nil
	}
}

// handleGetQuotes implements the get_quotes tool
func handleGetQuotes(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols := request.GetStringSlice("symbols", nil)
		if len(symbols) == 0 {
			return errorResult("Error: symbols parameter is required"), nil
		}

		quotes, err := router.Quotes().GetQuotes(ctx, symbols)
		if err != nil {
			logger.Error().Err(err).Strs("symbols", symbols).Msg("Get quotes failed")
			return errorResult(fmt.Sprintf("Quote error: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString("# Quotes\n\n")
		sb.WriteString("| Symbol | Bid | Ask | Last | Last Size | Source |\n")
		sb.WriteString("|--------|-----|-----|------|-----------|--------|\n")
		for _, q := range quotes {
			fmt.Fprintf(&sb, "| %s | %.2f | %.2f | %.2f | %d | %s |\n",
				q.Symbol, q.BidPrice, q.AskPrice, q.LastPrice, q.LastSize, q.Provider)
		}
		return textResult(sb.String()), nil
	}
}

// handleGetBars implements the get_bars tool
func handleGetBars(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols := request.GetStringSlice("symbols", nil)
		if len(symbols) == 0 {
			return errorResult("Error: symbols parameter is required"), nil
		}

		timeframe := request.GetString("timeframe", "1d")
		limit := request.GetInt("limit", 30)
		if limit > 500 {
			limit = 500
		}

		bars, err := router.Bars().GetBars(ctx, models.BarRequest{
			Symbols:   symbols,
			Timeframe: timeframe,
			Limit:     limit,
		})
		if err != nil {
			logger.Error().Err(err).Strs("symbols", symbols).Msg("Get bars failed")
			return errorResult(fmt.Sprintf("Bars error: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Bars (%s)\n", timeframe)
		ordered := make([]string, 0, len(bars))
		for symbol := range bars {
			ordered = append(ordered, symbol)
		}
		sort.Strings(ordered)
		for _, symbol := range ordered {
			fmt.Fprintf(&sb, "\n## %s\n\n", symbol)
			sb.WriteString("| Time | Open | High | Low | Close | Volume |\n")
			sb.WriteString("|------|------|------|-----|-------|--------|\n")
			for _, b := range bars[symbol] {
				fmt.Fprintf(&sb, "| %s | %.2f | %.2f | %.2f | %.2f | %d |\n",
					b.Timestamp.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Volume)
			}
		}
		return textResult(sb.String()), nil
	}
}

// handleDiscoverMovers implements the discover_movers tool
func handleDiscoverMovers(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 10)
		if limit > 50 {
			limit = 50
		}

		movers, err := router.Discovery().GetMovers(ctx, limit)
		if err != nil {
			logger.Error().Err(err).Msg("Discover movers failed")
			return errorResult(fmt.Sprintf("Discovery error: %v", err)), nil
		}

		return textResult(formatSnapshots("Market Movers", movers)), nil
	}
}

// handleCompanyProfile implements the get_company_profile tool
func handleCompanyProfile(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := request.RequireString("symbol")
		if err != nil || symbol == "" {
			return errorResult("Error: symbol parameter is required"), nil
		}

		profile, err := router.Context().GetCompanyProfile(ctx, symbol)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Get company profile failed")
			return errorResult(fmt.Sprintf("Profile error: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# %s (%s)\n\n", profile.Symbol, profile.Name)
		if profile.Sector != "" {
			fmt.Fprintf(&sb, "- Sector: %s\n", profile.Sector)
		}
		if profile.Industry != "" {
			fmt.Fprintf(&sb, "- Industry: %s\n", profile.Industry)
		}
		if profile.Employees > 0 {
			fmt.Fprintf(&sb, "- Employees: %d\n", profile.Employees)
		}
		if profile.Website != "" {
			fmt.Fprintf(&sb, "- Website: %s\n", profile.Website)
		}
		if profile.Description != "" {
			fmt.Fprintf(&sb, "\n%s\n", profile.Description)
		}
		return textResult(sb.String()), nil
	}
}

// handleFinancialMetrics implements the get_financial_metrics tool
func handleFinancialMetrics(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := request.RequireString("symbol")
		if err != nil || symbol == "" {
			return errorResult("Error: symbol parameter is required"), nil
		}

		metrics, err := router.Context().GetFinancialMetrics(ctx, symbol)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Get financial metrics failed")
			return errorResult(fmt.Sprintf("Metrics error: %v", err)), nil
		}

		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Financial Metrics: %s\n\n", symbol)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, metrics[k])
		}
		return textResult(sb.String()), nil
	}
}

// handleEarningsCalendar implements the get_earnings_calendar tool
func handleEarningsCalendar(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := request.GetInt("days", 7)
		if days > 30 {
			days = 30
		}

		start := time.Now()
		end := start.AddDate(0, 0, days)
		entries, err := router.Context().GetEarningsCalendar(ctx, start, end)
		if err != nil {
			logger.Error().Err(err).Msg("Get earnings calendar failed")
			return errorResult(fmt.Sprintf("Earnings error: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Earnings (next %d days)\n\n", days)
		for _, entry := range entries {
			fmt.Fprintf(&sb, "- %v\n", entry)
		}
		if len(entries) == 0 {
			sb.WriteString("No announcements in window.\n")
		}
		return textResult(sb.String()), nil
	}
}

// handleGetNews implements the get_news tool
func handleGetNews(router *routing.Router, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols := request.GetStringSlice("symbols", nil)
		if len(symbols) == 0 {
			return errorResult("Error: symbols parameter is required"), nil
		}

		limit := request.GetInt("limit", 5)
		if limit > 20 {
			limit = 20
		}

		news, err := router.Context().GetNews(ctx, symbols, limit)
		if err != nil {
			logger.Error().Err(err).Strs("symbols", symbols).Msg("Get news failed")
			return errorResult(fmt.Sprintf("News error: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString("# News\n")
		for _, symbol := range symbols {
			fmt.Fprintf(&sb, "\n## %s\n\n", symbol)
			items := news[symbol]
			if len(items) == 0 {
				sb.WriteString("No recent headlines.\n")
				continue
			}
			for _, item := range items {
				fmt.Fprintf(&sb, "- **%s** (%s, %s)\n", item.Headline, item.Source,
					item.PublishedAt.Format("2006-01-02"))
			}
		}
		return textResult(sb.String()), nil
	}
}

// handleScreenCandidates implements the screen_candidates tool
func handleScreenCandidates(router *routing.Router, scr *screener.Service, logger *common.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		criteria := models.ScreeningCriteria{
			MinPrice:     request.GetFloat("min_price", 0),
			MaxPrice:     request.GetFloat("max_price", 0),
			MinVolume:    int64(request.GetFloat("min_volume", 0)),
			Sector:       request.GetString("sector", ""),
			MinMarketCap: request.GetFloat("min_market_cap", 0),
		}

		candidates, err := scr.Screen(ctx, router, criteria)
		if err != nil {
			logger.Error().Err(err).Msg("Screen candidates failed")
			return errorResult(fmt.Sprintf("Screen error: %v", err)), nil
		}

		return textResult(formatSnapshots("Screen Candidates", candidates)), nil
	}
}

// handleExplainRouting implements the explain_routing tool
func handleExplainRouting(router *routing.Router) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var sb strings.Builder
		sb.WriteString("# Routing\n\n")
		fmt.Fprintf(&sb, "Fail-over order: %s\n\n", strings.Join(router.ProviderNames(), " -> "))

		if router.CachingEnabled() {
			fmt.Fprintf(&sb, "Caching: enabled (TTL %s)\n\n", router.CacheTTL())
		} else {
			sb.WriteString("Caching: disabled\n\n")
		}

		stats := router.Health().Stats()
		sb.WriteString("## Circuit breakers\n\n")
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			state := "healthy"
			if !router.Health().IsHealthy(name) {
				state = "open"
			}
			fmt.Fprintf(&sb, "- %s: %s (%d consecutive errors)\n", name, state, stats[name])
		}
		if len(stats) == 0 {
			sb.WriteString("No calls recorded yet.\n")
		}
		return textResult(sb.String()), nil
	}
}

// formatSnapshots renders discovery results as a markdown table.
func formatSnapshots(title string, snapshots []models.MarketSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if len(snapshots) == 0 {
		sb.WriteString("No results.\n")
		return sb.String()
	}
	sb.WriteString("| Symbol | Price | Change % | Volume | Source |\n")
	sb.WriteString("|--------|-------|----------|--------|--------|\n")
	for _, snap := range snapshots {
		fmt.Fprintf(&sb, "| %s | %.2f | %+.2f | %d | %s |\n",
			snap.Symbol, snap.Price, snap.ChangePercent, snap.Volume, snap.Source)
	}
	return sb.String()
}

// Helper functions

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
