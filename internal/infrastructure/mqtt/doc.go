// Package mqtt provides the broker connection used to relay flasher
// activity and accept remote commands.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained online/offline status with a Last Will and Testament
//   - Publishing with QoS and size checks
//   - Subscriptions that survive reconnects
//
// # Topics
//
//	udon/system/status       retained, LWT
//	udon/device/state        retained presence
//	udon/run/{started,finished,log,progress}
//	udon/command/{flash,reboot,redownload}
//	udon/command/rejected
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Command topics start the flasher; restrict them with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishJSON(client.Topics().RunProgress(), msg, false)
package mqtt
