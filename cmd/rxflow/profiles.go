package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List backend profiles",
	Long:  `Profiles are YAML files in the data directory's profiles/ folder. Each overrides the backend URL, timeouts and autosave settings.`,
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesShow,
}

var profilesUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesUse,
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default profile from the current configuration",
	Args:  cobra.NoArgs,
	RunE:  runProfilesInit,
}

func init() {
	profilesCmd.AddCommand(profilesShowCmd, profilesUseCmd, profilesInitCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	names := profiles.List()

	fmt.Fprintf(out, "Profiles (%s):\n", profiles.Dir())
	if len(names) == 0 {
		fmt.Fprintln(out, "  (none; run `rxflow profiles init` to create one)")
		return nil
	}

	active := profiles.GetActive()
	for _, name := range names {
		marker := " "
		if name == active {
			marker = "*"
		}
		p, _ := profiles.Get(name)
		fmt.Fprintf(out, "%s %-16s %s\n", marker, name, p.APIBaseURL)
	}
	return nil
}

func runProfilesShow(cmd *cobra.Command, args []string) error {
	p, err := profiles.Resolve(args[0])
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runProfilesUse(cmd *cobra.Command, args []string) error {
	if err := profiles.SetActive(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Active profile: %s\n", args[0])
	return nil
}

func runProfilesInit(cmd *cobra.Command, args []string) error {
	p := profiles.CreateDefault(cfg)
	if _, err := os.Stat(profiles.Path(p.Name)); err == nil {
		return fmt.Errorf("profile %s already exists", p.Name)
	}
	if err := profiles.Save(p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", profiles.Path(p.Name))
	return nil
}
