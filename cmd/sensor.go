package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmoreau/citycab/config"
	"github.com/kmoreau/citycab/infra/logger"
	"github.com/kmoreau/citycab/simulator"
)

var incidentRate float64

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Feed sensor readings to a taxi",
	RunE:  runSensor,
}

func init() {
	sensorCmd.Flags().Float64Var(&incidentRate, "incident-rate", 0, "probability per reading of a KO incident")
	rootCmd.AddCommand(sensorCmd)
}

func runSensor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	source := func() string {
		if incidentRate > 0 && rand.Float64() < incidentRate {
			return simulator.SensorKO
		}
		return simulator.SensorOK
	}
	cadence := time.Duration(cfg.Simulator.CadenceMS) * time.Millisecond
	feed := simulator.NewSensorFeed(cfg.Simulator.SensorAddr, cadence, source, logger.New("sensor"))
	return feed.Run(ctx)
}
