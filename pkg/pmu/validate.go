package pmu

// eventSelectWritableMask is the set of bits a user is ever allowed to set
// in a programmable counter's IA32_PERFEVTSEL_* MSR: event select, unit
// mask, USR, OS, edge-detect, PC, interrupt-enable, any-thread, enable,
// invert, and counter-mask. This is architectural, not probed from CPUID.
const eventSelectWritableMask uint64 = 0xffff | // event select + umask
	1<<16 | // USR
	1<<17 | // OS
	1<<18 | // edge detect (E)
	1<<19 | // PC
	1<<20 | // INT
	1<<21 | // ANY
	1<<22 | // EN
	1<<23 | // INV
	0xff<<24 // CMASK

// freezePerfmonOnPMIPolicy: freeze-perfmon-on-PMI is disabled by compile-time policy: it misbehaves on
// some steppings (see SPEC_FULL.md §9). A staged config must agree.
const freezePerfmonOnPMIPolicy = false

// validateControl checks global_ctrl, fixed_ctrl and debug_ctrl against
// caps's writable masks and the freeze-on-PMI policy.
func validateControl(cfg *Config, caps HardwareCaps) *Error {
	if cfg.GlobalCtrl&^caps.GlobalCtrlWritable != 0 {
		return newError(InvalidArgs, "non-writable bits set in global_ctrl")
	}
	if cfg.FixedCtrl&^caps.FixedCtrlWritable != 0 {
		return newError(InvalidArgs, "non-writable bits set in fixed_ctrl")
	}
	if cfg.DebugCtrl&^caps.DebugCtrlWritable != 0 {
		return newError(InvalidArgs, "non-writable bits set in debug_ctrl")
	}
	freezeRequested := cfg.DebugCtrl&debugCtlFreezePerfmonOnPMI != 0
	if freezeRequested != freezePerfmonOnPMIPolicy {
		return newError(InvalidArgs, "debug_ctrl freeze-perfmon-on-PMI bit does not match policy")
	}
	return nil
}

const debugCtlFreezePerfmonOnPMI = 1 << 12

// validateFixed walks cfg.FixedIDs[0:caps.NumFixed], enforcing the
// front-packed invariant and per-slot bounds, and returns the number of
// used slots.
func validateFixed(cfg *Config, caps HardwareCaps) (int, *Error) {
	seenLast := false
	numUsed := int(caps.NumFixed)
	for i := 0; i < int(caps.NumFixed); i++ {
		id := cfg.FixedIDs[i]
		if id != NoEvent && seenLast {
			return 0, errorf(InvalidArgs, "active fixed events not front-packed at slot %d", i)
		}
		if id == NoEvent {
			if !seenLast {
				numUsed = i
			}
			seenLast = true
		}
		if seenLast {
			if cfg.FixedInitialValue[i] != 0 {
				return 0, errorf(InvalidArgs, "unused fixed_initial_value[%d] not zero", i)
			}
			if cfg.FixedFlags[i] != 0 {
				return 0, errorf(InvalidArgs, "unused fixed_flags[%d] not zero", i)
			}
			continue
		}
		if cfg.FixedInitialValue[i] > caps.MaxFixedValue {
			return 0, errorf(InvalidArgs, "fixed_initial_value[%d] exceeds max fixed counter value", i)
		}
		if cfg.FixedFlags[i]&^Flags(ConfigFlagMask) != 0 {
			return 0, errorf(InvalidArgs, "unused bits set in fixed_flags[%d]", i)
		}
		if _, ok := lookupFixedCounter(id); !ok {
			return 0, errorf(InvalidArgs, "invalid fixed counter id at slot %d", i)
		}
	}
	return numUsed, nil
}

// validateProgrammable walks cfg.ProgrammableIDs[0:caps.NumProgrammable],
// analogous to validateFixed but additionally checking event select bits.
func validateProgrammable(cfg *Config, caps HardwareCaps) (int, *Error) {
	seenLast := false
	numUsed := int(caps.NumProgrammable)
	for i := 0; i < int(caps.NumProgrammable); i++ {
		id := cfg.ProgrammableIDs[i]
		if id != NoEvent && seenLast {
			return 0, errorf(InvalidArgs, "active programmable events not front-packed at slot %d", i)
		}
		if id == NoEvent {
			if !seenLast {
				numUsed = i
			}
			seenLast = true
		}
		if seenLast {
			if cfg.ProgrammableEvents[i] != 0 {
				return 0, errorf(InvalidArgs, "unused programmable_events[%d] not zero", i)
			}
			if cfg.ProgrammableInitialValue[i] != 0 {
				return 0, errorf(InvalidArgs, "unused programmable_initial_value[%d] not zero", i)
			}
			if cfg.ProgrammableFlags[i] != 0 {
				return 0, errorf(InvalidArgs, "unused programmable_flags[%d] not zero", i)
			}
			continue
		}
		if cfg.ProgrammableEvents[i]&^eventSelectWritableMask != 0 {
			return 0, errorf(InvalidArgs, "non-writable bits set in programmable_events[%d]", i)
		}
		if cfg.ProgrammableInitialValue[i] > caps.MaxProgrammableValue {
			return 0, errorf(InvalidArgs, "programmable_initial_value[%d] exceeds max programmable counter value", i)
		}
		if cfg.ProgrammableFlags[i]&^Flags(ConfigFlagMask) != 0 {
			return 0, errorf(InvalidArgs, "unused bits set in programmable_flags[%d]", i)
		}
	}
	return numUsed, nil
}

// validateConfig runs all three checks and, on success, returns the used
// counts. The session is left untouched on any failure.
func validateConfig(cfg *Config, caps HardwareCaps) (numFixed, numProgrammable int, err *Error) {
	if err := validateControl(cfg, caps); err != nil {
		return 0, 0, err
	}
	numFixed, err = validateFixed(cfg, caps)
	if err != nil {
		return 0, 0, err
	}
	numProgrammable, err = validateProgrammable(cfg, caps)
	if err != nil {
		return 0, 0, err
	}
	return numFixed, numProgrammable, nil
}
