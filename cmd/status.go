package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Duet/internal/config"
	"github.com/BioHazard786/Duet/internal/server"
	"github.com/BioHazard786/Duet/internal/ui"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show room and traffic counts of a relay",
	Long: `Query a relay's /stats endpoint.

Examples:
  duet status
  duet status --domain duet.example.com`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	addClientFlags(statusCmd.Flags())
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadClient(v)
	if err != nil {
		return err
	}

	url := cfg.StatsURL()
	stopSpinner := ui.RunConnectionSpinner("Contacting relay...")
	stats, err := fetchStats(cmd.Context(), url)
	stopSpinner()
	if err != nil {
		return fmt.Errorf("fetch relay stats from %s: %w", url, err)
	}

	ui.RenderStatusTable(ui.RelayStatus{
		URL:       url,
		Rooms:     stats.Rooms,
		Members:   stats.Members,
		FullRooms: stats.FullRooms,
		Counters:  stats.Counters,
	})
	return nil
}

func fetchStats(ctx context.Context, url string) (*server.StatsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var stats server.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
