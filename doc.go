/*
Package n64core is the bare-metal runtime core for a fixed-hardware 64-bit
game console. It gives application code running with no operating system a
coherent set of abstractions over the machine's memory-mapped peripherals:
a CPU interrupt controller, a video scan-out engine (VI), an audio DMA
engine (AI), and a peripheral DMA engine (PI) used to move data between the
cartridge bus and main memory.

The four subsystems are tightly coupled: the video and audio managers are
both driven entirely by interrupts dispatched through the Interrupt
controller. The video manager takes framebuffer PI-bus addresses from the
allocator's uncached buffers; it does not call the DMA engine. Application
code talks to Video, Audio and DMA directly; it never talks to Interrupt
except to register callbacks for sources the core does not already own
(serial, signal processor, reset). Cartridge callbacks can be registered
but Dispatch never delivers that source.

This package is pinned to one SoC's register map and interrupt timing. It
does not attempt portability across hardware families, dynamic
reconfiguration at arbitrary times, reentrant handlers, or preemptive
scheduling inside a handler.
*/
package n64core
