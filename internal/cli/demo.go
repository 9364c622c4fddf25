package cli

import (
	"io"

	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/pmu"
	"github.com/intelpmu/ipmcore/pkg/sharedmem"
	"github.com/spf13/cobra"
)

const demoBufferSize = 4096

func newDemoCommand(out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run init/assign/stage/start/<simulated overflow>/stop/fini once and print the captured records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(out)
		},
	}
}

func runDemo(out io.Writer) error {
	session, buses, _ := newRig()

	if err := session.Init(); err != nil {
		return err
	}

	objects := make([]*sharedmem.MemFDObject, demoNumCPUs)
	for cpu := 0; cpu < demoNumCPUs; cpu++ {
		obj, err := sharedmem.NewMemFDObject("ipmctl-demo", demoBufferSize)
		if err != nil {
			return err
		}
		objects[cpu] = obj
		if err := session.AssignBuffer(cpu, obj); err != nil {
			return err
		}
	}
	defer func() {
		for _, obj := range objects {
			obj.Close()
		}
	}()

	var cfg pmu.Config
	cfg.GlobalCtrl = 1 << 32 // enable fixed counter 0
	cfg.FixedCtrl = 0x3      // EN + OS/USR for fixed counter 0
	cfg.FixedIDs[0] = pmu.FixedInstrRetired
	if err := session.StageConfig(cfg); err != nil {
		return err
	}

	if err := session.Start(); err != nil {
		return err
	}

	// Simulate the hardware having ticked up fixed counter 0, then
	// deliver a PMI as if it had overflowed.
	for cpu := 0; cpu < demoNumCPUs; cpu++ {
		buses[cpu].Poke(msr.IA32_FIXED_CTR0, 1_000_000)
		buses[cpu].Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<32)
	}
	session.HandlePMI(0)

	if err := session.Stop(); err != nil {
		return err
	}
	if err := session.Fini(); err != nil {
		return err
	}

	mapping, err := objects[0].Map()
	if err != nil {
		return err
	}
	defer mapping.Unmap()

	return printJSON(out, pmu.DecodeRecords(mapping.Bytes()))
}
