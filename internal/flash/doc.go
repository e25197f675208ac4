// Package flash supervises the external odin4 flasher.
//
// # Components
//
//   - Classifier turns raw flasher output into log lines and progress
//     percentages, hiding the connection preamble and USB node noise.
//   - Builder produces the exact argument vectors odin4 expects for
//     flash, reboot and reboot-to-download.
//   - Runner executes one command and streams classified events, always
//     ending with a single Finished event.
//   - Supervisor owns the device monitor and at most one Runner, and
//     forwards everything to a Sink.
//
// # Ordering
//
// Within a run, events reach the Sink in the order the flasher printed
// the underlying lines, and OnRunFinished is the last call for that run.
// Device events are delivered in poll order. All Sink calls are made from
// a single goroutine at a time.
//
// # Usage
//
//	sup, err := flash.NewSupervisor(flash.Options{
//	    Builder: flash.Builder{Elevation: "pkexec", Binary: "./assets/odin4"},
//	    Monitor: device.NewMonitor(device.NewOdinProbe("./assets/odin4"), device.Config{}),
//	    Sink:    sink,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Shutdown()
//
//	run, err := sup.StartFlash(flash.Request{AP: "/tmp/AP.tar.md5", NoReboot: true})
package flash
