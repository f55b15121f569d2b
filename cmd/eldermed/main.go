package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/careloop/eldermed/internal/config"
	"github.com/careloop/eldermed/internal/escalation"
	"github.com/careloop/eldermed/internal/gateway"
	"github.com/careloop/eldermed/internal/store"
)

const appVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "eldermed",
	Short: "eldermed - medication companion for elders and their caregivers",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the eldermed version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eldermed %s\n", appVersion)
	},
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full daemon (escalation engine + channels + companion)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show eldermed status",
	RunE:  runStatus,
}

var medCmd = &cobra.Command{
	Use:   "med",
	Short: "Manage the medication schedule",
}

var medListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show today's schedule",
	RunE:  runMedList,
}

var medAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a medication to the schedule",
	RunE:  runMedAdd,
}

var medTakeCmd = &cobra.Command{
	Use:   "take <id>",
	Short: "Record a dose as taken",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedTake,
}

var medUntakeCmd = &cobra.Command{
	Use:   "untake <id>",
	Short: "Undo a mistaken take",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedUntake,
}

var medRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a medication from the schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runMedRemove,
}

var takeNote string

var addFlags struct {
	name        string
	commonName  string
	dosage      string
	form        string
	appearance  string
	timeOfDay   string
	instruction string
	clip        string
	quantity    int
	reorderAt   int
}

func init() {
	medAddCmd.Flags().StringVar(&addFlags.name, "name", "", "medication name (required)")
	medAddCmd.Flags().StringVar(&addFlags.commonName, "common-name", "", "everyday name, e.g. 'blood pressure pill'")
	medAddCmd.Flags().StringVar(&addFlags.dosage, "dosage", "", "dose, e.g. 5mg")
	medAddCmd.Flags().StringVar(&addFlags.form, "form", "pills", "pills, liquid or injection")
	medAddCmd.Flags().StringVar(&addFlags.appearance, "appearance", "", "what the medication looks like")
	medAddCmd.Flags().StringVar(&addFlags.timeOfDay, "time", "", "scheduled time HH:MM (required)")
	medAddCmd.Flags().StringVar(&addFlags.instruction, "instruction", "", "e.g. 'after breakfast'")
	medAddCmd.Flags().StringVar(&addFlags.clip, "clip", "", "path to a recorded WAV reminder")
	medAddCmd.Flags().IntVar(&addFlags.quantity, "quantity", 0, "units in stock")
	medAddCmd.Flags().IntVar(&addFlags.reorderAt, "reorder-at", 0, "warn when stock falls to this level")
	_ = medAddCmd.MarkFlagRequired("name")
	_ = medAddCmd.MarkFlagRequired("time")

	medTakeCmd.Flags().StringVar(&takeNote, "note", "", "optional proof note, e.g. a photo path")

	medCmd.AddCommand(medListCmd, medAddCmd, medTakeCmd, medUntakeCmd, medRemoveCmd)
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd, medCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Companion.Enabled && cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'eldermed onboard' or set ELDERMED_API_KEY / ANTHROPIC_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(filepath.Join(cfgDir, "data"), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s: set the elder's name and the caregiver's telegram chat\n", cfgPath)
	fmt.Println("  2. Add medications: eldermed med add --name Amlodipine --dosage 5mg --time 08:00")
	fmt.Println("  3. Start the daemon: eldermed gateway")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Schedule DB: %s\n", cfg.Store.DBPath)
	fmt.Printf("Alert policy: %s (tick every %ds, rollover %s)\n",
		cfg.Engine.AlertPolicy, cfg.Engine.TickSeconds, cfg.Engine.RolloverTime)
	fmt.Printf("Voice: enabled=%v\n", cfg.Voice.Enabled)
	fmt.Printf("Dashboard: enabled=%v\n", cfg.Channels.Dashboard.Enabled)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Companion: enabled=%v model=%s\n", cfg.Companion.Enabled, cfg.Companion.Model)

	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Printf("Schedule: error (%v)\n", err)
		return nil
	}
	defer s.Close()

	taken, total, err := s.Adherence()
	if err != nil {
		fmt.Printf("Schedule: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Today: %d of %d doses taken\n", taken, total)

	low, err := s.LowStock()
	if err == nil && len(low) > 0 {
		fmt.Println("Low stock:")
		for _, m := range low {
			fmt.Printf("  %s: %d left (reorder at %d)\n", m.DisplayName(), m.Quantity, m.ReorderAt)
		}
	}
	return nil
}

func openStore() (*store.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(cfg.Store.DBPath)
}

func runMedList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	meds, err := s.List()
	if err != nil {
		return err
	}
	printSchedule(cmd.OutOrStdout(), meds)
	if len(meds) > 0 {
		taken := 0
		for _, m := range meds {
			if m.Taken {
				taken++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d doses taken today\n", taken, len(meds))
	}
	return nil
}

func printSchedule(w io.Writer, meds []escalation.Medication) {
	if len(meds) == 0 {
		fmt.Fprintln(w, "No medications scheduled. Add one with 'eldermed med add'.")
		return
	}
	for _, m := range meds {
		status := "pending"
		if m.Taken {
			status = "taken"
			if m.TakenAt != nil {
				status = "taken " + m.TakenAt.Format("15:04")
			}
		} else if m.AlertStage > escalation.StageNone {
			status = "overdue (" + m.AlertStage.String() + ")"
		}
		line := fmt.Sprintf("%s  %-20s %-8s %s", m.TimeOfDay, m.DisplayName(), m.Dosage, status)
		if m.Quantity > 0 || m.ReorderAt > 0 {
			line += fmt.Sprintf("  [stock %d]", m.Quantity)
		}
		fmt.Fprintf(w, "%s\n  id: %s\n", line, m.ID)
	}
}

func runMedAdd(cmd *cobra.Command, args []string) error {
	timeOfDay := strings.TrimSpace(addFlags.timeOfDay)
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		return fmt.Errorf("invalid --time %q, want HH:MM", addFlags.timeOfDay)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	med, err := s.Add(escalation.Medication{
		Name:        addFlags.name,
		CommonName:  addFlags.commonName,
		Dosage:      addFlags.dosage,
		DoseForm:    addFlags.form,
		Appearance:  addFlags.appearance,
		TimeOfDay:   timeOfDay,
		Instruction: addFlags.instruction,
		VoiceClip:   addFlags.clip,
		Quantity:    addFlags.quantity,
		ReorderAt:   addFlags.reorderAt,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s at %s (id %s)\n", med.DisplayName(), med.TimeOfDay, med.ID)
	return nil
}

func runMedTake(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.MarkTaken(args[0], time.Now()); err != nil {
		return err
	}
	if takeNote != "" {
		if err := s.SetTakenNote(args[0], takeNote); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Dose recorded.")
	return nil
}

func runMedUntake(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.MarkUntaken(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Dose cleared; reminders will resume.")
	return nil
}

func runMedRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Removed.")
	return nil
}
