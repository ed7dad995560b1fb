package commands

import (
	"fmt"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/spf13/cobra"
)

func NewGuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guild",
		Short: "Manage category and request channel names",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List guild settings",
			RunE:  runGuildList,
		},
		&cobra.Command{
			Use:   "set <setting> <name>",
			Short: "Set a category or request channel name",
			Long:  "Set a guild setting, e.g. 'gatekeeper guild set event_category Events'.",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runGuildSet(args[0], args[1])
			},
		},
	)

	return cmd
}

func runGuildList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Guild settings:")
	fmt.Printf("  %-26s %-22s %s\n", "SETTING", "VALUE", "ENV")
	fmt.Printf("  %-26s %-22s %s\n", strings.Repeat("-", 26), strings.Repeat("-", 22), strings.Repeat("-", 20))

	for _, slot := range config.AllSlots {
		value := cfg.Guild.Slot(slot)
		if value == "" {
			value = "(missing)"
		}
		fmt.Printf("  %-26s %-22s %s\n", slotName(slot), value, slot.EnvName())
	}

	return nil
}

func runGuildSet(setting, value string) error {
	slot, ok := parseSlot(setting)
	if !ok {
		names := make([]string, 0, len(config.AllSlots))
		for _, s := range config.AllSlots {
			names = append(names, slotName(s))
		}
		return fmt.Errorf("unknown guild setting %q (expected one of: %s)", setting, strings.Join(names, ", "))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("name for %s must not be empty", slotName(slot))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch slot {
	case config.SlotEventCategory:
		cfg.Guild.EventCategory = value
	case config.SlotArchiveEventCategory:
		cfg.Guild.ArchiveEventCategory = value
	case config.SlotEventRequestChannel:
		cfg.Guild.EventRequestChannel = value
	case config.SlotProjectCategory:
		cfg.Guild.ProjectCategory = value
	case config.SlotArchiveProjectCategory:
		cfg.Guild.ArchiveProjectCategory = value
	case config.SlotProjectRequestChannel:
		cfg.Guild.ProjectRequestChannel = value
	case config.SlotClubCategory:
		cfg.Guild.ClubCategory = value
	case config.SlotClubRequestChannel:
		cfg.Guild.ClubRequestChannel = value
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("%s set to %q\n", slotName(slot), value)
	return nil
}

func slotName(s config.ChannelSlot) string {
	return strings.TrimPrefix(s.Key(), "guild.")
}

// parseSlot accepts the setting with or without the "guild." prefix and with
// dashes or underscores.
func parseSlot(setting string) (config.ChannelSlot, bool) {
	name := strings.ToLower(strings.TrimSpace(setting))
	name = strings.TrimPrefix(name, "guild.")
	name = strings.ReplaceAll(name, "-", "_")
	for _, s := range config.AllSlots {
		if slotName(s) == name {
			return s, true
		}
	}
	return 0, false
}
