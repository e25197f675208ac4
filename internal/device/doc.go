// Package device tracks whether a flashable device is connected.
//
// A Monitor polls a Prober at a fixed interval and turns the stream of
// present/absent answers into edge-triggered Attached and Detached events.
// The initial state is Absent, so a device that is already connected when
// the monitor starts produces one Attached event on the first poll, and an
// unchanged answer never produces an event.
//
// Probe failures of any kind (timeout, missing binary, non-zero exit,
// libusb errors) mean Absent. They are not errors for the caller.
//
// Two probers are provided:
//
//   - OdinProbe runs "<binary> -l" and inspects its output.
//   - USBProbe enumerates the USB bus through libusb and matches a
//     vendor/product ID pair.
//
// Usage:
//
//	mon := device.NewMonitor(device.NewOdinProbe("./assets/odin4"), device.Config{})
//	events, err := mon.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	defer mon.Stop()
//
//	for ev := range events {
//	    fmt.Println(ev.Message())
//	}
package device
