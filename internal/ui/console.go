// Package ui provides styled console output for the HPN P-Router.
// It prints colorized request lines, status badges and startup information
// next to the structured JSON logs.
package ui

import (
	"fmt"
	"net/url"
	"time"

	"github.com/fatih/color"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// Badge colors
	successBadge = color.New(color.BgGreen, color.FgBlack, color.Bold)
	warningBadge = color.New(color.FgYellow, color.Bold)
	errorBadge   = color.New(color.BgRed, color.FgWhite, color.Bold)
	infoBadge    = color.New(color.FgCyan, color.Bold)
	debugBadge   = color.New(color.FgMagenta)

	// Text colors
	successText = color.New(color.FgGreen, color.Bold)
	warningText = color.New(color.FgYellow)
	errorText   = color.New(color.FgRed)
	infoText    = color.New(color.FgCyan)
	mutedText   = color.New(color.FgHiBlack)
	accentText  = color.New(color.FgMagenta, color.Bold)
	neonBlue    = color.New(color.FgHiCyan, color.Bold)

	// Method colors
	methodPOST = color.New(color.BgHiMagenta, color.FgBlack, color.Bold)
	methodGET  = color.New(color.BgHiCyan, color.FgBlack, color.Bold)
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS BADGES
// ══════════════════════════════════════════════════════════════════════════════

// PrintSwitching logs a proxy failover.
// Format: ⚠️ [SWITCHING] fromProxy → toProxy
func PrintSwitching(fromProxy, toProxy string) {
	fmt.Print("⚠️  ")
	warningBadge.Print("[SWITCHING]")
	fmt.Print(" ")
	mutedText.Print(MaskProxy(fromProxy))
	warningText.Print(" → ")
	accentText.Println(MaskProxy(toProxy))
}

// PrintDeadProxy logs when a proxy is taken out of rotation.
// Format: 💀 [DEAD PROXY] host marked as dead (reason)
func PrintDeadProxy(proxy string, reason string) {
	fmt.Print("💀 ")
	errorBadge.Print(" DEAD PROXY ")
	fmt.Print(" ")
	errorText.Print(MaskProxy(proxy))
	mutedText.Printf(" marked as dead (%s)\n", reason)
}

// PrintBackendError logs a backend error frame received mid-stream.
func PrintBackendError(raw string) {
	errorBadge.Print(" BACKEND ERROR ")
	fmt.Print(" ")
	errorText.Println(truncate(raw, 80))
}

// PrintStreamDone logs a completed answer.
// Format: ✔ [DONE] 42 fragments | 1234ms
func PrintStreamDone(fragments int, latency time.Duration) {
	successText.Print("✔ [DONE] ")
	fmt.Printf("%d fragments | ", fragments)
	printLatency(latency)
	fmt.Println()
}

// PrintRouterInfo logs general router information.
// Format: [ROUTER] message
func PrintRouterInfo(msg string) {
	infoBadge.Print("[ROUTER]")
	fmt.Print(" ")
	infoText.Println(msg)
}

// PrintCacheHit logs a cache hit with lightning styling.
// Format: ⚡ CACHE HIT | key:xxxx...xxxx | 0ms
func PrintCacheHit(cacheKey string, latency time.Duration) {
	neonBlue.Print("⚡ CACHE HIT ")
	fmt.Print("| key:")
	mutedText.Print(maskShort(cacheKey))
	fmt.Print(" | ")
	successText.Printf("%dms\n", latency.Milliseconds())
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// PrintRequest logs a request with styled output.
func PrintRequest(method, path string, status int, latency time.Duration, proxy string) {
	mutedText.Printf("%s ", time.Now().Format("15:04:05"))

	printMethodBadge(method)
	fmt.Print(" ")

	fmt.Printf("%-30s ", truncate(path, 30))

	printStatusBadge(status)
	fmt.Print(" ")

	printLatency(latency)
	fmt.Print(" ")

	if proxy != "" {
		mutedText.Printf("via:%s", MaskProxy(proxy))
	}

	fmt.Println()
}

func printMethodBadge(method string) {
	switch method {
	case "POST":
		methodPOST.Printf(" %s ", method)
	case "GET":
		methodGET.Printf(" %s ", method)
	default:
		debugBadge.Printf(" %s ", method)
	}
}

func printStatusBadge(status int) {
	switch {
	case status >= 200 && status < 300:
		successBadge.Printf(" %d ", status)
	case status >= 300 && status < 400:
		infoBadge.Printf(" %d ", status)
	case status >= 400 && status < 500:
		warningBadge.Printf(" %d ", status)
	default:
		errorBadge.Printf(" %d ", status)
	}
}

// printLatency prints latency with a color gradient. Answers stream for
// seconds, so the thresholds are wider than for plain API calls.
func printLatency(latency time.Duration) {
	ms := latency.Milliseconds()
	latencyStr := fmt.Sprintf("%5dms", ms)

	switch {
	case ms < 2000:
		successText.Print(latencyStr)
	case ms < 10000:
		warningText.Print(latencyStr)
	default:
		errorText.Print(latencyStr)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UTILITY FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// MaskProxy returns the proxy's scheme and host without credentials.
// An empty proxy prints as "direct".
func MaskProxy(proxy string) string {
	if proxy == "" {
		return "direct"
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host
}

func maskShort(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ══════════════════════════════════════════════════════════════════════════════
// STARTUP MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// PrintStartupInfo prints styled server startup information.
func PrintStartupInfo(host string, port int, activeProxies int, model string) {
	fmt.Println()
	infoBadge.Print("[ROUTER]")
	fmt.Print(" Server starting on ")
	neonBlue.Printf("http://%s:%d\n", host, port)

	infoBadge.Print("[ROUTER]")
	fmt.Print(" Proxies: ")
	if activeProxies > 0 {
		successText.Printf("%d", activeProxies)
	} else {
		warningText.Print("direct")
	}
	fmt.Print(" | Model: ")
	accentText.Println(model)

	fmt.Println()
	printEndpoints()
}

func printEndpoints() {
	mutedText.Println("  ┌─────────────────────────────────────────────────────────┐")
	mutedText.Print("  │ ")
	methodPOST.Print(" POST ")
	fmt.Print(" /v1/chat/completions ")
	mutedText.Print("  Chat completion (OpenAI-compatible)")
	mutedText.Println(" │")

	mutedText.Print("  │ ")
	methodGET.Print(" GET  ")
	fmt.Print(" /v1/models           ")
	mutedText.Print("  List Phind models                ")
	mutedText.Println(" │")

	mutedText.Print("  │ ")
	methodGET.Print(" GET  ")
	fmt.Print(" /health              ")
	mutedText.Print("  Proxy pool status                ")
	mutedText.Println(" │")

	mutedText.Print("  │ ")
	methodGET.Print(" GET  ")
	fmt.Print(" /metrics             ")
	mutedText.Print("  Prometheus metrics               ")
	mutedText.Println(" │")

	mutedText.Println("  └─────────────────────────────────────────────────────────┘")
	fmt.Println()
}

// PrintShutdown prints a styled shutdown message.
func PrintShutdown() {
	fmt.Println()
	warningBadge.Print("[SHUTDOWN]")
	warningText.Println(" Graceful shutdown initiated...")
}

// PrintGoodbye prints a styled goodbye message.
func PrintGoodbye() {
	successBadge.Print(" OK ")
	fmt.Print(" ")
	successText.Println("Server stopped. Goodbye! 👋")
}
