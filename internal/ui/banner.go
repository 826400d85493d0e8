// Package ui provides styled console output for the HPN P-Router.
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASCII ART BANNER
// ══════════════════════════════════════════════════════════════════════════════

// PrintBanner displays the ASCII art startup banner. version is printed on
// the info line.
func PrintBanner(version string) {
	// Clear some space
	fmt.Println()

	// Define colors for gradient effect
	cyan := color.New(color.FgCyan, color.Bold)
	magenta := color.New(color.FgMagenta, color.Bold)
	hiCyan := color.New(color.FgHiCyan)
	hiMagenta := color.New(color.FgHiMagenta)
	yellow := color.New(color.FgYellow, color.Bold)
	white := color.New(color.FgWhite)
	dim := color.New(color.FgHiBlack)

	// Top border
	cyan.Println("╔══════════════════════════════════════════════════════════════════════╗")

	// HPN ROUTER ASCII art
	cyan.Print("║  ")
	hiCyan.Print("██╗  ██╗")
	white.Print("██████╗ ")
	hiMagenta.Print("███╗   ██╗")
	dim.Print("    ")
	magenta.Print("██████╗  ██████╗ ██╗   ██╗████████╗███████╗██████╗ ")
	cyan.Println(" ║")

	cyan.Print("║  ")
	hiCyan.Print("██║  ██║")
	white.Print("██╔══██╗")
	hiMagenta.Print("████╗  ██║")
	dim.Print("    ")
	magenta.Print("██╔══██╗██╔═══██╗██║   ██║╚══██╔══╝██╔════╝██╔══██╗")
	cyan.Println(" ║")

	cyan.Print("║  ")
	hiCyan.Print("███████║")
	white.Print("██████╔╝")
	hiMagenta.Print("██╔██╗ ██║")
	dim.Print("    ")
	magenta.Print("██████╔╝██║   ██║██║   ██║   ██║   █████╗  ██████╔╝")
	cyan.Println(" ║")

	cyan.Print("║  ")
	hiCyan.Print("██╔══██║")
	white.Print("██╔═══╝ ")
	hiMagenta.Print("██║╚██╗██║")
	dim.Print("    ")
	magenta.Print("██╔══██╗██║   ██║██║   ██║   ██║   ██╔══╝  ██╔══██╗")
	cyan.Println(" ║")

	cyan.Print("║  ")
	hiCyan.Print("██║  ██║")
	white.Print("██║     ")
	hiMagenta.Print("██║ ╚████║")
	dim.Print("    ")
	magenta.Print("██║  ██║╚██████╔╝╚██████╔╝   ██║   ███████╗██║  ██║")
	cyan.Println(" ║")

	cyan.Print("║  ")
	hiCyan.Print("╚═╝  ╚═╝")
	white.Print("╚═╝     ")
	hiMagenta.Print("╚═╝  ╚═══╝")
	dim.Print("    ")
	magenta.Print("╚═╝  ╚═╝ ╚═════╝  ╚═════╝    ╚═╝   ╚══════╝╚═╝  ╚═╝")
	cyan.Println(" ║")

	// Middle separator
	cyan.Println("╠══════════════════════════════════════════════════════════════════════╣")

	// Info line
	cyan.Print("║  ")
	yellow.Print("🔎 PHIND CHAT ROUTER")
	dim.Print("  │  ")
	hiMagenta.Print("OPENAI-COMPATIBLE")
	dim.Print("  │  ")
	white.Printf("%-8s", version)
	dim.Print("                     ")
	cyan.Println("║")

	// Bottom border
	cyan.Println("╚══════════════════════════════════════════════════════════════════════╝")

	fmt.Println()
}
