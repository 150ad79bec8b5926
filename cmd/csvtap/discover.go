package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/csvtap/csvtap/pkg/emit"
)

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC66")).Bold(true)
)

const maxListedObjects = 10

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The emitter is required by the runner but discovery never writes
	// to it; point it at a discarded buffer rather than stdout.
	runner, err := buildRunner(ctx, cfg, emit.New(&strings.Builder{}), false)
	if err != nil {
		return err
	}

	discoveries, err := runner.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	for _, d := range discoveries {
		fmt.Println()
		fmt.Println(titleStyle.Render("table " + d.Table.Name))
		fmt.Println(mutedStyle.Render("  pattern: " + d.Table.Pattern))
		if len(d.Table.KeyProperties) > 0 {
			fmt.Println(mutedStyle.Render("  key:     " + strings.Join(d.Table.KeyProperties, ", ")))
		}

		if len(d.Objects) == 0 {
			fmt.Println(mutedStyle.Render("  nothing new to extract"))
			continue
		}

		fmt.Println(accentStyle.Render(fmt.Sprintf("  %d pending objects", len(d.Objects))))
		for i, obj := range d.Objects {
			if i == maxListedObjects {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("    ... and %d more", len(d.Objects)-maxListedObjects)))
				break
			}
			fmt.Printf("    %s  %s  %d bytes\n",
				obj.LastModified.Format("2006-01-02 15:04:05"), obj.Key, obj.Size)
		}

		if d.Schema != nil {
			fmt.Println(titleStyle.Render("  inferred schema"))
			for _, col := range d.Schema.Columns() {
				nullable := ""
				if col.Nullable {
					nullable = mutedStyle.Render(" (nullable)")
				}
				fmt.Printf("    %-24s %s%s\n", col.Name, col.Type, nullable)
			}
		}
	}

	return nil
}
