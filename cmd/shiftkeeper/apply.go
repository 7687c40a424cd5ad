package main

import (
	"fmt"
	"os"

	"github.com/cuemby/shiftkeeper/pkg/api"
	"github.com/cuemby/shiftkeeper/pkg/client"
	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a roster file",
	Long: `Upsert schedules and occurrences, and assign makeup shifts, from a YAML
roster file.

Example roster:

  schedules:
    - id: mon-evening
      name: Monday evening
      dayOfWeek: 1
      startTime: "18:00"
      endTime: "22:00"
  occurrences:
    - id: mon-evening-2024-06-10
      scheduleId: mon-evening
      date: "2024-06-10"
      assignedUserIds: [alice, bob]
  makeups:
    - occurrenceId: mon-evening-2024-06-10
      userId: carol

Examples:
  # Publish next month's roster
  shiftkeeper apply -f roster.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML roster file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Roster is the apply file format
type Roster struct {
	Schedules   []*types.ShiftSchedule `yaml:"schedules"`
	Occurrences []RosterOccurrence     `yaml:"occurrences"`
	Makeups     []RosterMakeup         `yaml:"makeups"`
}

type RosterOccurrence struct {
	ID              string   `yaml:"id"`
	ScheduleID      string   `yaml:"scheduleId"`
	Date            string   `yaml:"date"`
	AssignedUserIDs []string `yaml:"assignedUserIds"`
}

type RosterMakeup struct {
	OccurrenceID string `yaml:"occurrenceId"`
	UserID       string `yaml:"userId"`
}

func parseRoster(data []byte) (*Roster, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	for i, m := range roster.Makeups {
		if m.OccurrenceID == "" || m.UserID == "" {
			return nil, fmt.Errorf("makeup %d: occurrenceId and userId are required", i)
		}
	}
	return &roster, nil
}

func (r *Roster) occurrenceDTOs() []api.OccurrenceDTO {
	dtos := make([]api.OccurrenceDTO, 0, len(r.Occurrences))
	for _, occ := range r.Occurrences {
		dtos = append(dtos, api.OccurrenceDTO{
			ID:              occ.ID,
			ScheduleID:      occ.ScheduleID,
			Date:            occ.Date,
			AssignedUserIDs: occ.AssignedUserIDs,
		})
	}
	return dtos
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	roster, err := parseRoster(data)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	return applyRoster(c, roster)
}

func applyRoster(c *client.Client, roster *Roster) error {
	if len(roster.Schedules) > 0 {
		n, err := c.PutSchedules(roster.Schedules)
		if err != nil {
			return fmt.Errorf("failed to apply schedules: %w", err)
		}
		fmt.Printf("✓ Schedules applied: %d\n", n)
	}

	if len(roster.Occurrences) > 0 {
		n, err := c.PutOccurrences(roster.occurrenceDTOs())
		if err != nil {
			return fmt.Errorf("failed to apply occurrences: %w", err)
		}
		fmt.Printf("✓ Occurrences applied: %d\n", n)
	}

	for _, m := range roster.Makeups {
		row, err := c.CreateMakeup(m.OccurrenceID, m.UserID)
		if err != nil {
			return fmt.Errorf("failed to assign makeup %s/%s: %w", m.OccurrenceID, m.UserID, err)
		}
		fmt.Printf("✓ Makeup assigned: %s on %s (ID: %s, status: %s)\n", m.UserID, m.OccurrenceID, row.ID, row.Status)
	}
	return nil
}
