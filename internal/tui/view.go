package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// --- Header ---
	title := fmt.Sprintf("go-decode-pipeline  %s %dx%d @ %.0ffps  [%s]",
		m.codec, m.videoWidth, m.videoHeight, m.targetFPS, m.mode)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(GetHealthLabel(m.DropRate(), false))
	b.WriteString("  ")
	b.WriteString(unitStyle.Render("elapsed " + formatDuration(m.Elapsed())))
	b.WriteString("\n")

	// --- Frame Flow ---
	b.WriteString(sectionHeaderStyle.Render("Frame Flow"))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Submitted", formatNumber(m.stats.TotalFrames)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Decoded", formatNumber(m.stats.DecodedFrames)))
	b.WriteString("\n")
	b.WriteString(RenderStyledKeyValue("Dropped",
		fmt.Sprintf("%s (%s)", formatNumber(m.stats.DroppedFrames), formatPercent(m.DropRate())),
		GetDropRateStyle(m.DropRate())))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Received rate", formatFPS(m.stats.ReceivedFPS)))
	b.WriteString("\n")
	b.WriteString(RenderStyledKeyValue("Rendered rate",
		formatFPS(m.stats.RenderedFPS),
		GetFPSStyle(m.stats.RenderedFPS, m.targetFPS)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Bitrate",
		fmt.Sprintf("%.0f kbps (60s avg %.0f)", m.stats.BitrateKbps, m.stats.Bitrate60sKbps)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Bytes", formatBytes(m.stats.TotalBytes)))
	b.WriteString("\n")

	if m.targetFPS > 0 {
		frac := m.stats.RenderedFPS / m.targetFPS
		b.WriteString(labelStyle.Render("Throughput:"))
		b.WriteString(RenderGauge(frac, 30))
		b.WriteString("\n")
	}

	// --- Decode Latency ---
	b.WriteString(sectionHeaderStyle.Render("Decode Latency"))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Average", formatMs(m.stats.AvgDecodeMs)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("p50 / p95 / p99",
		fmt.Sprintf("%s / %s / %s",
			formatMs(m.stats.DecodeP50Ms),
			formatMs(m.stats.DecodeP95Ms),
			formatMs(m.stats.DecodeP99Ms))))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Max", formatMs(m.stats.MaxDecodeMs)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Host latency", formatMs(m.stats.AvgHostLatencyMs)))
	b.WriteString("\n")

	// --- Pipeline ---
	b.WriteString(sectionHeaderStyle.Render("Pipeline"))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Pending queue", fmt.Sprintf("%d", m.pendingLen)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Timestamp map", fmt.Sprintf("%d", m.stats.TimestampMapSize)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Re-anchors", fmt.Sprintf("%d", m.reanchors)))
	b.WriteString("\n")
	if m.needsIDR {
		b.WriteString(RenderStyledKeyValue("Keyframe", "WAITING FOR IDR", valueWarnStyle))
	} else {
		b.WriteString(RenderStyledKeyValue("Keyframe", "ok", valueGoodStyle))
	}
	b.WriteString("\n")

	// --- Footer ---
	footer := fmt.Sprintf("metrics %s  •  press q to quit", m.metricsAddr)
	b.WriteString(footerStyle.Render(footer))
	b.WriteString("\n")

	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}
