// main is the entry point of the backfill CLI.
package main

import (
	"errors"
	"os"

	"github.com/huangsam/backfill/cmd"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/internal/warehouse"
)

func main() {
	err := cmd.Execute()
	if stopErr := cmd.StopProfiling(); stopErr != nil {
		contract.LogWarn("Failed to stop profiling", stopErr)
	}
	warehouse.CloseWarehouse()
	if err != nil {
		if !errors.Is(err, cmd.ErrFailedDates) {
			contract.LogWarn("Command failed", err)
		}
		os.Exit(1)
	}
}
