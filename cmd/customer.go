package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmoreau/citycab/config"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/infra/mqtt"
	"github.com/kmoreau/citycab/simulator"
)

var (
	customerID   string
	destinations []string
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Run one simulated customer",
	RunE:  runCustomer,
}

func init() {
	customerCmd.Flags().StringVar(&customerID, "id", "", "customer identifier (defaults to simulator.customer_id)")
	customerCmd.Flags().StringSliceVar(&destinations, "destinations", nil, "destination ids to visit in order")
	rootCmd.AddCommand(customerCmd)
}

func runCustomer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	id := customerID
	if id == "" {
		id = cfg.Simulator.CustomerID
	}
	if id == "" {
		return fmt.Errorf("a customer identifier is required")
	}
	dests := destinations
	if len(dests) == 0 {
		dests = cfg.Simulator.Destinations
	}
	if len(dests) == 0 {
		return fmt.Errorf("at least one destination is required")
	}

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("customer-%s", id)
	relay, err := mqtt.NewPahoBus(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer relay.Close()

	pause := time.Duration(cfg.Simulator.PauseMS) * time.Millisecond
	agent := simulator.NewAgent(id, dests, relay, pause, logger.New("customer"))
	return agent.Run(ctx)
}
