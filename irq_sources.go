package n64core

// Source identifies one hardware interrupt line fanned out by the
// dispatcher. The ordering here has no meaning beyond indexing; dispatch
// order across sources follows SourceDispatchOrder.
type Source int

const (
	SourceAudio Source = iota
	SourceVideo
	SourcePeripheral
	SourceRasterizer
	SourceSerial
	SourceSignalProcessor
	SourceTimer
	SourceCartridge
	SourceReset
	SourceUSB // present only on some platform variants
	sourceCount
)

func (s Source) String() string {
	switch s {
	case SourceAudio:
		return "audio"
	case SourceVideo:
		return "video"
	case SourcePeripheral:
		return "peripheral"
	case SourceRasterizer:
		return "rasterizer"
	case SourceSerial:
		return "serial"
	case SourceSignalProcessor:
		return "signal-processor"
	case SourceTimer:
		return "timer"
	case SourceCartridge:
		return "cartridge"
	case SourceReset:
		return "reset"
	case SourceUSB:
		return "usb"
	default:
		return "unknown"
	}
}

// SourceDispatchOrder is the order the top-level handler tests MI_INTR bits
// in. Video and audio are checked first since they are the highest-rate
// sources. Reset is listed last but is skipped by the MI_INTR scan:
// Controller.Dispatch handles it through its pendingReset argument before
// the scan starts.
var SourceDispatchOrder = [...]Source{
	SourceVideo,
	SourceAudio,
	SourcePeripheral,
	SourceRasterizer,
	SourceSerial,
	SourceSignalProcessor,
	SourceTimer,
	SourceUSB,
	SourceCartridge,
	SourceReset,
}

// miIntrBit returns the MI_INTR bit position for sources that are
// aggregated through the MIPS Interface. SourceTimer and SourceReset are
// delivered via CP0 cause bits rather than MI_INTR and are handled
// specially in Controller.Dispatch. SourceCartridge also has no MI_INTR bit
// and no branch of its own in Dispatch, so handlers registered for it are
// never invoked.
func miIntrBit(s Source) uint32 {
	switch s {
	case SourceVideo:
		return 1 << 3
	case SourceAudio:
		return 1 << 2
	case SourcePeripheral:
		return 1 << 4
	case SourceRasterizer:
		return 1 << 5
	case SourceSerial:
		return 1 << 1
	case SourceSignalProcessor:
		return 1 << 0
	case SourceUSB:
		return 1 << 6
	default:
		return 0
	}
}
