package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kmoreau/citycab/config"
	"github.com/kmoreau/citycab/core/envelope"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/infra/mqtt"
	"github.com/kmoreau/citycab/simulator"
)

var taxiID string

var taxiCmd = &cobra.Command{
	Use:   "taxi",
	Short: "Run one simulated taxi",
	RunE:  runTaxi,
}

func init() {
	taxiCmd.Flags().StringVar(&taxiID, "id", "", "taxi identifier (defaults to simulator.taxi_id)")
	rootCmd.AddCommand(taxiCmd)
}

func runTaxi(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	id := taxiID
	if id == "" {
		id = cfg.Simulator.TaxiID
	}
	if id == "" {
		return fmt.Errorf("a taxi identifier is required")
	}

	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("taxi-%s", id)
	relay, err := mqtt.NewPahoBus(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer relay.Close()

	pair, err := envelope.NewKeyPair()
	if err != nil {
		return err
	}

	cadence := time.Duration(cfg.Simulator.CadenceMS) * time.Millisecond
	engine := simulator.NewEngine(id, relay, pair, cadence, logger.New("engine"))
	connector := simulator.NewConnector(cfg.Simulator.CoordinatorAddr, id, cfg.Session.Secret, pair, engine, logger.New("connector"))
	sensors := simulator.NewSensorListener(cfg.Simulator.SensorAddr, engine, logger.New("sensors"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return connector.Run(ctx) })
	g.Go(func() error { return sensors.Run(ctx) })
	return g.Wait()
}
