package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/ledger"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/registry"
	"github.com/openrp/cad/infra/logger"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a dispatch smoke scenario against an in-memory core",
	RunE:  simulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New("simulate")
	units := registry.NewMemoryStore()
	calls := ledger.NewMemoryStore("SIM")
	engine := dispatch.NewEngine(units, calls, logg)

	seeds := []struct {
		callsign string
		x, y     float64
	}{
		{"1A-12", 0, 0},
		{"1A-30", 50, 10},
		{"1L-07", 200, 200},
	}
	for _, s := range seeds {
		u, err := units.Register(model.Unit{
			Callsign:   s.callsign,
			Department: model.DeptPolice,
			Location:   model.NewCoordinate(s.x, s.y),
		})
		if err != nil {
			return err
		}
		if _, err := engine.ReportStatus(ctx, u.ID, model.UnitAvailable, nil); err != nil {
			return err
		}
	}

	call, err := engine.OpenCall(ctx, model.Call{
		Type:     "TRAFFIC_STOP",
		Priority: model.PriorityHigh,
		Location: model.NewCoordinate(10, 20),
	})
	if err != nil {
		return err
	}
	fmt.Printf("opened %s (%s)\n", call.Number, call.Type)

	nearest := engine.Nearest(call.Location, 1)
	if len(nearest) == 0 {
		return fmt.Errorf("no available unit in range")
	}
	call, unit, err := engine.Assign(ctx, call.ID, nearest[0].ID)
	if err != nil {
		return err
	}
	fmt.Printf("assigned %s to %s: call %s, unit %s\n",
		unit.Callsign, call.Number, call.Status, unit.Status)

	if _, err := engine.UpdateCallStatus(ctx, call.ID, model.CallClosed); err != nil {
		return err
	}
	fmt.Println("call closed, unit released")
	return engine.Close()
}
