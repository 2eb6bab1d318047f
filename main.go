package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/joho/godotenv"

	"github.com/tabsend/cli/cmd"
)

func colorScheme(c lipgloss.LightDarkFunc) fang.ColorScheme {
	s := fang.DefaultColorScheme(c)
	s.Title = c(lipgloss.Color("#0284c7"), lipgloss.Color("#38bdf8"))
	return s
}

func main() {
	// Optional: lets TABSEND_* settings live in a local .env file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fang.Execute(ctx, cmd.Root(),
		fang.WithVersion(cmd.Version),
		fang.WithColorSchemeFunc(colorScheme),
	); err != nil {
		os.Exit(1)
	}
}
